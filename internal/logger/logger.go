package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

func init() {
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	if lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		log.SetLevel(lvl)
	}
}

// For returns a logger entry tagged with the given component name.
func For(component string) *logrus.Entry {
	return log.WithField("component", component)
}

// SetLevel overrides the level picked up from LOG_LEVEL.
func SetLevel(lvl logrus.Level) {
	log.SetLevel(lvl)
}
