package launcher

import (
	"errors"

	"gopkg.in/urfave/cli.v1"

	"github.com/rony4d/go-dawn-chain/dawn/genesis"
	"github.com/rony4d/go-dawn-chain/integration"
)

// makeConfig resolves the node configuration from CLI flags.
func makeConfig(ctx *cli.Context) (integration.NodeConfig, error) {
	datadir := ctx.GlobalString("datadir")

	var cfg integration.NodeConfig
	if ctx.GlobalBool("fakenet") {
		cfg = integration.FakeNetNodeConfig(datadir)
	} else {
		cfg = integration.DefaultNodeConfig(datadir)
		path := ctx.GlobalString("genesis")
		if path == "" {
			return cfg, errors.New("either --genesis or --fakenet is required")
		}
		g, err := genesis.LoadJSON(path)
		if err != nil {
			return cfg, err
		}
		cfg.Genesis = g
	}

	if dir := ctx.GlobalString("blocklog.dir"); dir != "" {
		cfg.BlockLogDir = dir
	}
	cfg.ReadOnly = ctx.GlobalBool("readonly")

	preset, err := integration.GetPresetByName(ctx.GlobalString("preset"))
	if err != nil {
		return cfg, err
	}
	cfg.Preset = preset
	return cfg, nil
}
