/*
Package logging configures the engine's structured logger.

PURPOSE:

	One place to build the logrus logger every component shares. JSON
	output so log aggregation can index fields, level settable from the
	command line.
*/
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds a logger at the given level ("debug", "info", "warn",
// "error"). Unknown levels fall back to info.
func New(level string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
	})

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	log.SetLevel(parsed)
	return log
}
