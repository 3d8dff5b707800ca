package softdevice

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Logger is the logging surface used throughout the module. The default
// implementation writes logrus text to stderr at Info level; SetLogger
// swaps in anything else satisfying the interface.
type Logger interface {
	Info(...interface{})
	Debug(...interface{})
	Error(...interface{})
	Warn(...interface{})

	Infof(string, ...interface{})
	Debugf(string, ...interface{})
	Errorf(string, ...interface{})
	Warnf(string, ...interface{})

	// ChildLogger returns a logger scoped with the given fields.
	ChildLogger(tags map[string]interface{}) Logger
}

var (
	loggerMu sync.Mutex
	logger   Logger
)

// SetLogger replaces the package logger.
func SetLogger(l Logger) {
	loggerMu.Lock()
	logger = l
	loggerMu.Unlock()
}

// GetLogger returns the package logger, building the default on first
// use.
func GetLogger() Logger {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if logger == nil {
		logger = newLogrusLogger()
	}
	return logger
}

// SetLogLevelMax raises the default logger to trace verbosity. It has
// no effect on a logger installed through SetLogger.
func SetLogLevelMax() {
	if lg, ok := GetLogger().(*logrusLogger); ok {
		lg.Entry.Logger.SetLevel(logrus.TraceLevel)
	}
}

type logrusLogger struct {
	*logrus.Entry
}

func newLogrusLogger() *logrusLogger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	return &logrusLogger{Entry: logrus.NewEntry(l)}
}

func (l *logrusLogger) ChildLogger(tags map[string]interface{}) Logger {
	return &logrusLogger{Entry: l.Entry.WithFields(tags)}
}
