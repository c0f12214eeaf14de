package genesis

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-dawn-chain/dawn"
	"github.com/rony4d/go-dawn-chain/inter"
)

const testTime = inter.Timestamp(1600000000 * uint64(time.Second))

func TestFakeGenesisDeterministic(t *testing.T) {
	require := require.New(t)

	a := FakeGenesis(3, testTime)
	b := FakeGenesis(3, testTime)
	require.Equal(a.Hash(), b.Hash())
	require.Len(a.InitialProducers, 3)
	require.Len(a.InitialAccounts, 3)
	require.NoError(a.Validate(dawn.FakeNetRules()))

	c := FakeGenesis(2, testTime)
	require.NotEqual(a.Hash(), c.Hash())
}

func TestFakeKeyStable(t *testing.T) {
	require := require.New(t)
	require.Equal(FakeKey(1).D, FakeKey(1).D)
	require.NotEqual(FakeKey(1).D, FakeKey(2).D)
}

func TestValidate(t *testing.T) {
	rules := dawn.FakeNetRules()

	t.Run("no timestamp", func(t *testing.T) {
		g := FakeGenesis(1, testTime)
		g.Timestamp = 0
		require.Error(t, g.Validate(rules))
	})

	t.Run("unaligned timestamp", func(t *testing.T) {
		g := FakeGenesis(1, testTime+1)
		require.Error(t, g.Validate(rules))
	})

	t.Run("no producers", func(t *testing.T) {
		g := FakeGenesis(1, testTime)
		g.InitialProducers = nil
		require.Error(t, g.Validate(rules))
	})

	t.Run("too many producers", func(t *testing.T) {
		g := FakeGenesis(int(rules.Blocks.MaxProducers)+1, testTime)
		require.Error(t, g.Validate(rules))
	})
}

func TestLoadJSON(t *testing.T) {
	require := require.New(t)

	dir, err := ioutil.TempDir("", "genesis")
	require.NoError(err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	doc := `{
		"timestamp": 1600000000000000000,
		"config": {
			"MaxTransactionLifetime": 3600000000000,
			"MaxAuthorityDepth": 6,
			"MaxBlockSize": 1048576,
			"FixedBandwidthOverheadPerTransaction": 100
		},
		"producers": [
			{"name": "producer0", "blockSigningKey": "0x` + keyHex(0) + `"}
		],
		"accounts": [
			{"name": "producer0", "ownerKey": "0x` + keyHex(0) + `", "activeKey": "0x` + keyHex(0) + `", "stakedBalance": 1000}
		]
	}`
	path := filepath.Join(dir, "genesis.json")
	require.NoError(ioutil.WriteFile(path, []byte(doc), 0600))

	g, err := LoadJSON(path)
	require.NoError(err)
	require.Equal(testTime, g.Timestamp)
	require.Len(g.InitialProducers, 1)
	require.Equal(inter.Name("producer0"), g.InitialProducers[0].ProducerName)
	require.Equal(uint64(1000), g.InitialAccounts[0].StakedBalance)
	require.NoError(g.Validate(dawn.FakeNetRules()))
}

func keyHex(i int) string {
	pk := inter.PubKeyFromECDSA(&FakeKey(i).PublicKey)
	return pk.String()[2:]
}

func TestLoadJSONErrors(t *testing.T) {
	require := require.New(t)

	_, err := LoadJSON("/nonexistent/genesis.json")
	require.Error(err)

	dir, err := ioutil.TempDir("", "genesis")
	require.NoError(err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	path := filepath.Join(dir, "bad.json")
	require.NoError(ioutil.WriteFile(path, []byte("{"), 0600))
	_, err = LoadJSON(path)
	require.Error(err)
}
