// Package logging builds the structured logrus logger shared across the
// CLI, webhook intake, and background worker.
package logging

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New builds a logrus.Logger configured from level ("debug", "info",
// "warn", "error") and format ("text" or "json"), writing to stderr.
func New(level, format string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	parsed, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		parsed = logrus.InfoLevel
	}
	log.SetLevel(parsed)

	if strings.EqualFold(format, "json") {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}
