package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New creates the service logger. Output is always JSON so log
// aggregation stays consistent between local runs and production.
func New() *logrus.Logger {
	log := logrus.New()

	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "time",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "msg",
		},
	})

	log.SetOutput(os.Stdout)

	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}

// SetLevel adjusts the level after config load (env wins at startup,
// config applies once parsed).
func SetLevel(log *logrus.Logger, level string) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		log.WithField("level", level).Warn("Unknown log level, keeping current")
		return
	}
	log.SetLevel(parsed)
}
