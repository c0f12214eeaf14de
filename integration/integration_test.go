package integration

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPresets(t *testing.T) {
	require := require.New(t)

	for _, name := range []string{"default", "lite", "full", "archive"} {
		preset, err := GetPresetByName(name)
		require.NoError(err)
		require.Equal(name, preset.Name)
		require.True(preset.CacheMB > 0)
		require.True(preset.PruneForkDepth > 0)
	}

	_, err := GetPresetByName("bogus")
	require.Error(err)
}

func TestFakeNetAssembly(t *testing.T) {
	require := require.New(t)

	dir, err := ioutil.TempDir("", "dawn-node")
	require.NoError(err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	cfg := FakeNetNodeConfig(dir)
	require.Equal(filepath.Join(dir, "blocklog"), cfg.BlockLogDir)
	require.NotNil(cfg.Genesis)
	require.Equal("fake", cfg.Rules.Name)

	controller, err := Assemble(cfg)
	require.NoError(err)
	defer controller.Close()

	require.Equal(uint32(0), controller.HeadBlockNum())
	require.Equal(cfg.Genesis.Hash(), controller.ChainID())
}
