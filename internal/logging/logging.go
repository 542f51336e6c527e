// Package logging configures the process-wide logrus logger.
package logging

import (
	"io"
	"os"

	log "github.com/sirupsen/logrus"
)

// Setup sets the formatter and level. Production gets JSON lines; every
// other environment gets readable text.
func Setup(level, environment string) {
	SetupWriter(os.Stdout, level, environment)
}

// SetupWriter is Setup with an explicit destination.
func SetupWriter(w io.Writer, level, environment string) {
	if environment == "production" {
		log.SetFormatter(&log.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	} else {
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}
	log.SetOutput(w)

	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
		log.WithField("level", level).Warn("Unknown log level, using info")
	}
	log.SetLevel(lvl)
}

// Component returns an entry tagged with the owning component.
func Component(name string) *log.Entry {
	return log.WithField("component", name)
}
