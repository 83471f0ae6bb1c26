package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

type Options struct {
	// Level is a logrus level name such as "debug" or "info". Defaults to info.
	Level string
	// JSON switches from the text formatter to the JSON formatter.
	JSON bool
	// Output defaults to stderr.
	Output io.Writer
}

// New builds a logger from the options.
func New(opts Options) (*logrus.Logger, error) {
	logger := logrus.New()

	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	logger.SetOutput(opts.Output)

	if opts.Level == "" {
		opts.Level = "info"
	}
	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
	}
	logger.SetLevel(level)

	if opts.JSON {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}

	return logger, nil
}

// Discard returns a logger that drops everything.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
