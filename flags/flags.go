// Package flags defines the CLI flag surface of the dawn node.
package flags

import (
	"gopkg.in/urfave/cli.v1"
)

// NewApp creates the base CLI application.
func NewApp() *cli.App {
	app := cli.NewApp()
	app.Name = "dawn"
	app.Usage = "the dawn chain node"
	app.Flags = CommonFlags()
	return app
}

// CommonFlags returns the base set of CLI flags shared across commands.
func CommonFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "datadir",
			Usage: "Data directory for the dawn node",
			Value: "~/.dawn",
		},
		cli.StringFlag{
			Name:  "blocklog.dir",
			Usage: "Directory of the append-only block log (defaults to <datadir>/blocklog)",
		},
		cli.BoolFlag{
			Name:  "readonly",
			Usage: "Open the block log without write access",
		},
		cli.StringFlag{
			Name:  "genesis",
			Usage: "Path of the genesis JSON document",
		},
		cli.BoolFlag{
			Name:  "fakenet",
			Usage: "Run a single-producer fake network for development",
		},
		cli.StringFlag{
			Name:  "preset",
			Usage: "Runtime preset profile (default|lite|full|archive)",
			Value: "default",
		},
		cli.StringFlag{
			Name:  "log.format",
			Usage: "Log output format (text|json)",
			Value: "text",
		},
		cli.IntFlag{
			Name:  "log.verbosity",
			Usage: "Logging verbosity (0=panic,1=fatal,2=error,3=warn,4=info,5=debug)",
			Value: 4,
		},
		cli.BoolFlag{
			Name:  "log.color",
			Usage: "Enable colored log output",
		},
		cli.StringFlag{
			Name:  "log.sentry.dsn",
			Usage: "Sentry DSN for error report forwarding",
		},
	}
}
