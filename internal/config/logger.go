package config

import (
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the process-wide structured logger. Output is JSON so log
// shippers can index fields without parsing; LOG_LEVEL overrides the default.
func NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	level := logrus.InfoLevel
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		if parsed, err := logrus.ParseLevel(raw); err == nil {
			level = parsed
		}
	}
	logger.SetLevel(level)
	return logger
}
