package utils

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogOptions configures NewLogger
type LogOptions struct {
	Level      string
	Verbose    bool
	File       string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

// NewLogger builds the process logger. LOG_LEVEL overrides the configured level.
func NewLogger(opts LogOptions) *logrus.Logger {
	logger := logrus.New()

	// Set timestamp format with milliseconds
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})

	level := logrus.InfoLevel
	if opts.Verbose {
		level = logrus.DebugLevel
	}
	if opts.Level != "" {
		if parsed, err := logrus.ParseLevel(opts.Level); err == nil {
			level = parsed
		}
	}
	if levelStr := os.Getenv("LOG_LEVEL"); levelStr != "" {
		if parsed, err := logrus.ParseLevel(levelStr); err == nil {
			level = parsed
		}
	}
	logger.SetLevel(level)

	if opts.File != "" {
		logger.SetOutput(io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSize,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAge,
			Compress:   opts.Compress,
		}))
	}

	return logger
}
