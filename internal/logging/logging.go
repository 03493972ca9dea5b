// Package logging builds the logrus loggers shared by the pipeline and its
// host command.
package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Level string
	// File enables a rotating log file next to the console output.
	File    string
	Console io.Writer
	JSON    bool
}

// New returns a logger and a close func for the file sink (no-op without one).
func New(opts Options) (*logrus.Logger, func() error, error) {
	l := logrus.New()

	level := logrus.InfoLevel
	if opts.Level != "" {
		parsed, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "invalid log level %q", opts.Level)
		}
		level = parsed
	}
	l.SetLevel(level)

	if opts.JSON {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	closeFn := func() error { return nil }
	if opts.File == "" {
		l.SetOutput(console)
		return l, closeFn, nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
		return nil, nil, errors.Wrap(err, "create log directory")
	}
	rotating := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
	l.SetOutput(io.MultiWriter(console, rotating))
	return l, rotating.Close, nil
}

// Discard returns a logger that drops everything.
func Discard() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l logrus.FieldLogger) logrus.FieldLogger {
	if l == nil {
		return Discard()
	}
	return l
}
