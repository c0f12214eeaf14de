package integration

import (
	"path/filepath"
	"time"

	"github.com/rony4d/go-dawn-chain/chain"
	"github.com/rony4d/go-dawn-chain/dawn"
	"github.com/rony4d/go-dawn-chain/dawn/genesis"
	"github.com/rony4d/go-dawn-chain/inter"
)

// NodeConfig is the fully resolved configuration of a node.
type NodeConfig struct {
	DataDir     string
	BlockLogDir string
	ReadOnly    bool
	Rules       dawn.Rules
	Genesis     *genesis.Genesis
	Preset      PresetConfig
}

// DefaultNodeConfig resolves defaults relative to the data directory.
func DefaultNodeConfig(datadir string) NodeConfig {
	return NodeConfig{
		DataDir:     datadir,
		BlockLogDir: filepath.Join(datadir, "blocklog"),
		Rules:       dawn.MainNetRules(),
		Preset:      DefaultPreset(),
	}
}

// FakeNetNodeConfig returns a single-producer development configuration
// with a deterministic genesis anchored at the current wall clock, rounded
// down to the block interval.
func FakeNetNodeConfig(datadir string) NodeConfig {
	cfg := DefaultNodeConfig(datadir)
	cfg.Rules = dawn.FakeNetRules()
	now := inter.FromTime(time.Now())
	now -= now % cfg.Rules.Blocks.Interval
	cfg.Genesis = genesis.FakeGenesis(1, now)
	return cfg
}

// Assemble opens the controller described by the configuration.
func Assemble(cfg NodeConfig) (*chain.Controller, error) {
	return chain.New(chain.Config{
		Rules:       cfg.Rules,
		Genesis:     cfg.Genesis,
		BlockLogDir: cfg.BlockLogDir,
		ReadOnly:    cfg.ReadOnly,
	})
}
