package log

import (
	"os"

	"github.com/sirupsen/logrus"
)

const (
	// TimestampFormat defines the timestamp format in log files and in the
	// lines persisted into mirror status records.
	TimestampFormat = "2006-01-02T15:04:05.000Z"
)

var defaultLogger = logrus.StandardLogger()

func init() {
	// Stdout of this process carries report output for external tooling,
	// so log statements that occur before Configure ran must never end up
	// there.
	defaultLogger.Out = os.Stderr
}

// Configure sets the format and level on the default logger.
func Configure(format string, level string) {
	var formatter logrus.Formatter
	switch format {
	case "json":
		formatter = &logrus.JSONFormatter{TimestampFormat: TimestampFormat}
	case "text", "":
		formatter = &logrus.TextFormatter{TimestampFormat: TimestampFormat}
	default:
		logrus.WithField("format", format).Fatal("invalid logger format")
	}

	logrusLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logrusLevel = logrus.InfoLevel
	}

	defaultLogger.SetLevel(logrusLevel)
	defaultLogger.Formatter = formatter
}

// Default is the default logrus logger
func Default() *logrus.Entry { return defaultLogger.WithField("pid", os.Getpid()) }
