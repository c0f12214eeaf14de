package launcher

import (
	"github.com/evalphobia/logrus_sentry"
	"github.com/sirupsen/logrus"
	"gopkg.in/urfave/cli.v1"
)

// setupLogging configures the process-wide logger from CLI flags:
// formatter, verbosity, and an optional Sentry hook for error forwarding.
func setupLogging(ctx *cli.Context) error {
	switch ctx.GlobalString("log.format") {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{
			ForceColors:   ctx.GlobalBool("log.color"),
			FullTimestamp: true,
		})
	}

	verbosity := ctx.GlobalInt("log.verbosity")
	if verbosity < 0 {
		verbosity = 0
	}
	if verbosity > int(logrus.DebugLevel) {
		verbosity = int(logrus.DebugLevel)
	}
	logrus.SetLevel(logrus.Level(verbosity))

	if dsn := ctx.GlobalString("log.sentry.dsn"); dsn != "" {
		hook, err := logrus_sentry.NewSentryHook(dsn, []logrus.Level{
			logrus.PanicLevel,
			logrus.FatalLevel,
			logrus.ErrorLevel,
		})
		if err != nil {
			return err
		}
		logrus.AddHook(hook)
	}
	return nil
}
