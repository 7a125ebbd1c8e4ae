package utils

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

const logTimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// Logger is the process-wide logger shared by every component
var Logger *logrus.Logger

// InitLogger configures the shared logger from the logging config values.
// Output is stdout, stderr, or an append-only file when output is "file".
func InitLogger(level, format, output, file string) error {
	logger := logrus.New()

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return NewAppError(ErrCodeConfiguration, "Unknown log level", level)
	}
	logger.SetLevel(parsed)
	logger.SetFormatter(newFormatter(format))

	sink, err := openSink(output, file)
	if err != nil {
		return err
	}
	logger.SetOutput(sink)

	Logger = logger
	return nil
}

// GetLogger returns the shared logger, falling back to info-level JSON on
// stdout when nothing has configured it yet.
func GetLogger() *logrus.Logger {
	if Logger == nil {
		InitLogger("info", "json", "stdout", "")
	}
	return Logger
}

func newFormatter(format string) logrus.Formatter {
	if format == "text" {
		return &logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: logTimestampFormat,
		}
	}
	return &logrus.JSONFormatter{TimestampFormat: logTimestampFormat}
}

func openSink(output, file string) (io.Writer, error) {
	switch {
	case output == "stderr":
		return os.Stderr, nil
	case output == "file" && file != "":
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, NewAppError(ErrCodeConfiguration, "Cannot open log file", err.Error())
		}
		return f, nil
	default:
		return os.Stdout, nil
	}
}
