// Package genesis defines the genesis document of a dawn network: the
// initial timestamp, chain configuration, producer set, and accounts that
// every node must agree on before the first block.
package genesis

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/rony4d/go-dawn-chain/dawn"
	"github.com/rony4d/go-dawn-chain/inter"
)

// Account is an initial account created by the genesis transaction.
type Account struct {
	Name      inter.Name
	OwnerKey  inter.PubKey
	ActiveKey inter.PubKey
	// StakedBalance seeds the stake used by the bandwidth policy.
	StakedBalance uint64
}

// Genesis is the complete genesis document.
type Genesis struct {
	Timestamp inter.Timestamp
	Config    dawn.ChainConfig

	InitialProducers []inter.ProducerKey
	InitialAccounts  []Account
}

// Validate checks the structural invariants of the document against the
// given rules.
func (g *Genesis) Validate(rules dawn.Rules) error {
	if g.Timestamp == 0 {
		return errors.New("genesis: timestamp is not set")
	}
	if g.Timestamp%rules.Blocks.Interval != 0 {
		return errors.New("genesis: timestamp must be divisible by the block interval")
	}
	if len(g.InitialProducers) == 0 {
		return errors.New("genesis: at least one initial producer is required")
	}
	if uint32(len(g.InitialProducers)) > rules.Blocks.MaxProducers {
		return fmt.Errorf("genesis: %d initial producers exceed the maximum of %d",
			len(g.InitialProducers), rules.Blocks.MaxProducers)
	}
	return nil
}

// Hash returns the digest of the genesis document. It seeds the chain id.
func (g *Genesis) Hash() hash.Hash {
	raw, err := rlp.EncodeToBytes(g)
	if err != nil {
		panic("can't hash: " + err.Error())
	}
	return hash.Of(raw)
}

// genesisJSON is the file representation, with keys in hex.
type genesisJSON struct {
	Timestamp uint64           `json:"timestamp"`
	Config    dawn.ChainConfig `json:"config"`
	Producers []struct {
		Name inter.Name `json:"name"`
		Key  string     `json:"blockSigningKey"`
	} `json:"producers"`
	Accounts []struct {
		Name          inter.Name `json:"name"`
		OwnerKey      string     `json:"ownerKey"`
		ActiveKey     string     `json:"activeKey"`
		StakedBalance uint64     `json:"stakedBalance"`
	} `json:"accounts"`
}

// LoadJSON reads a genesis document from a JSON file.
func LoadJSON(path string) (*Genesis, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc genesisJSON
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("genesis: malformed file %s: %w", path, err)
	}

	g := &Genesis{
		Timestamp: inter.Timestamp(doc.Timestamp),
		Config:    doc.Config,
	}
	for _, p := range doc.Producers {
		key, err := hexutil.Decode(p.Key)
		if err != nil {
			return nil, fmt.Errorf("genesis: bad signing key of %s: %w", p.Name, err)
		}
		g.InitialProducers = append(g.InitialProducers, inter.ProducerKey{
			ProducerName:    p.Name,
			BlockSigningKey: inter.BytesToPubKey(key),
		})
	}
	for _, a := range doc.Accounts {
		owner, err := hexutil.Decode(a.OwnerKey)
		if err != nil {
			return nil, fmt.Errorf("genesis: bad owner key of %s: %w", a.Name, err)
		}
		active, err := hexutil.Decode(a.ActiveKey)
		if err != nil {
			return nil, fmt.Errorf("genesis: bad active key of %s: %w", a.Name, err)
		}
		g.InitialAccounts = append(g.InitialAccounts, Account{
			Name:          a.Name,
			OwnerKey:      inter.BytesToPubKey(owner),
			ActiveKey:     inter.BytesToPubKey(active),
			StakedBalance: a.StakedBalance,
		})
	}
	return g, nil
}

// FakeKey deterministically derives the i-th fake producer key. Test-only
// networks use these so every node derives the same genesis.
func FakeKey(i int) *ecdsa.PrivateKey {
	seed := hash.Of([]byte{byte(i), byte(i >> 8), 0xfa, 0xce})
	key, err := crypto.ToECDSA(seed.Bytes())
	if err != nil {
		panic(err)
	}
	return key
}

// FakeGenesis builds a deterministic genesis of n producers for fake
// networks, starting at the given timestamp.
func FakeGenesis(n int, at inter.Timestamp) *Genesis {
	g := &Genesis{
		Timestamp: at,
		Config:    dawn.DefaultChainConfig(),
	}
	for i := 0; i < n; i++ {
		key := inter.PubKeyFromECDSA(&FakeKey(i).PublicKey)
		name := inter.Name(fmt.Sprintf("producer%d", i))
		g.InitialProducers = append(g.InitialProducers, inter.ProducerKey{
			ProducerName:    name,
			BlockSigningKey: key,
		})
		g.InitialAccounts = append(g.InitialAccounts, Account{
			Name:          name,
			OwnerKey:      key,
			ActiveKey:     key,
			StakedBalance: 1000000,
		})
	}
	return g
}
