// Package launcher wires CLI flags into a running dawn node.
package launcher

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"gopkg.in/urfave/cli.v1"

	"github.com/rony4d/go-dawn-chain/flags"
	"github.com/rony4d/go-dawn-chain/integration"
	"github.com/rony4d/go-dawn-chain/inter"
)

var app = flags.NewApp()

func init() {
	app.Action = run
}

// Launch parses the command line and runs the node until interrupted.
func Launch(args []string) error {
	return app.Run(args)
}

func run(ctx *cli.Context) error {
	if err := setupLogging(ctx); err != nil {
		return err
	}

	cfg, err := makeConfig(ctx)
	if err != nil {
		return err
	}

	controller, err := integration.Assemble(cfg)
	if err != nil {
		return err
	}
	defer controller.Close()

	controller.SubscribeAppliedBlock(func(trace *inter.BlockTrace) {
		logrus.WithFields(logrus.Fields{
			"num":      trace.Block.Num(),
			"id":       trace.Block.ID(),
			"producer": trace.Block.Producer,
		}).Info("applied block")
	})

	logrus.WithFields(logrus.Fields{
		"network": cfg.Rules.Name,
		"head":    controller.HeadBlockNum(),
		"lib":     controller.LastIrreversibleBlockNum(),
		"preset":  cfg.Preset.Name,
	}).Info("dawn node started")

	// wait for interruption; the controller releases its write lock
	// between calls, so shutdown is clean
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigc
	logrus.WithField("signal", sig.String()).Info("shutting down")
	return nil
}
