package logger

import (
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// New builds the base log entry for a module. Local runs get a pretty
// console formatter, everything else gets JSON.
func New(module string) *logrus.Entry {
	base := logrus.New()

	env := os.Getenv("ENVIRONMENT")
	if env == "" || env == "local" {
		base.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	} else {
		base.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	}

	base.SetOutput(os.Stderr)
	base.SetLevel(parseLevel(os.Getenv("LOG_LEVEL")))

	return base.WithField("module", module)
}

func parseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// SetLevel overrides the level parsed from the environment, used by the
// --verbose CLI flag.
func SetLevel(entry *logrus.Entry, level string) {
	entry.Logger.SetLevel(parseLevel(level))
}
