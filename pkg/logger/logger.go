// Package logger writes the run log. Nothing is logged until Init is called,
// so packages can log freely from tests.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu      sync.Mutex
	log     *logrus.Logger
	logFile *os.File
)

// Init opens logPath for appending and routes all log calls to it. Debug
// messages are kept only when verbose is set. Calling Init again switches
// to the new file.
func Init(logPath string, verbose bool) error {
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	l := logrus.New()
	l.SetOutput(f)
	l.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})
	l.SetLevel(logrus.InfoLevel)
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	}

	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		_ = logFile.Close()
	}
	log, logFile = l, f
	return nil
}

// Close flushes and closes the log file. Later calls are dropped.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		_ = logFile.Close()
	}
	log, logFile = nil, nil
}

func logf(level logrus.Level, fields logrus.Fields, format string, v []interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if log == nil {
		return
	}
	if fields != nil {
		log.WithFields(fields).Logf(level, format, v...)
		return
	}
	log.Logf(level, format, v...)
}

// Info logs progress: sessions, scenarios, steps.
func Info(format string, v ...interface{}) { logf(logrus.InfoLevel, nil, format, v) }

// Debug logs protocol-level detail, kept only in verbose mode.
func Debug(format string, v ...interface{}) { logf(logrus.DebugLevel, nil, format, v) }

// Warn logs recoverable problems.
func Warn(format string, v ...interface{}) { logf(logrus.WarnLevel, nil, format, v) }

// Error logs failures that stop a scenario or the run.
func Error(format string, v ...interface{}) { logf(logrus.ErrorLevel, nil, format, v) }

// Fields logs an info message with structured fields attached.
func Fields(fields map[string]interface{}, format string, v ...interface{}) {
	logf(logrus.InfoLevel, logrus.Fields(fields), format, v)
}

// GetWriter returns the log file, or io.Discard before Init. Driver
// processes write their output here.
func GetWriter() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		return logFile
	}
	return io.Discard
}
