// Package logger configures the structured application logger
package logger

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/amirphl/orochi-attribution/config"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	std   = logrus.New()
	stdMu sync.Mutex
)

// Init applies cfg to the shared logger. Safe to call more than once.
func Init(cfg config.LoggingConfig) error {
	stdMu.Lock()
	defer stdMu.Unlock()

	l, err := New(cfg)
	if err != nil {
		return err
	}
	std = l
	return nil
}

// New builds a logger writing to stdout, a rotating file, or both
func New(cfg config.LoggingConfig) (*logrus.Logger, error) {
	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if cfg.Format == "text" {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "time",
				logrus.FieldKeyMsg:  "message",
			},
		})
	}

	var writers []io.Writer
	if cfg.Output == "file" || cfg.Output == "both" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return nil, err
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
	}
	if cfg.Output != "file" {
		writers = append(writers, os.Stdout)
	}
	l.SetOutput(io.MultiWriter(writers...))
	l.SetReportCaller(cfg.EnableCaller)

	return l, nil
}

// L returns the shared logger
func L() *logrus.Logger {
	stdMu.Lock()
	defer stdMu.Unlock()
	return std
}

// Named returns an entry tagged with a component name
func Named(component string) *logrus.Entry {
	return L().WithField("component", component)
}
