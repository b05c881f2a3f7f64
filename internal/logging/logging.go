// Package logging wires the core's logging collaborator onto logrus.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	defaultLogger *logrus.Logger
	once          sync.Once
)

// Init initializes the default logger as a single-init singleton: the
// first call builds it, and every later call is a no-op returning the
// same instance.
func Init(level string, filePath string) *logrus.Logger {
	once.Do(func() {
		defaultLogger = build(level, filePath)
	})
	return defaultLogger
}

// Get returns the default logger, initializing it with sane defaults if
// Init was never called.
func Get() *logrus.Logger {
	once.Do(func() {
		defaultLogger = build("info", "")
	})
	return defaultLogger
}

func build(level string, filePath string) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	if filePath != "" {
		if err := os.MkdirAll(filepath.Dir(filePath), 0755); err == nil {
			f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err == nil {
				l.SetOutput(io.MultiWriter(os.Stdout, f))
			}
		}
	}

	return l
}
