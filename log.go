package hypervisor

import (
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	logMu  sync.RWMutex
	logger = newLogger(io.Discard, logrus.InfoLevel)
)

func newLogger(out io.Writer, level logrus.Level) *logrus.Logger {
	if out == nil {
		out = io.Discard
	}
	return &logrus.Logger{
		Out: out,
		Formatter: &logrus.TextFormatter{
			DisableColors:    true,
			DisableTimestamp: true,
		},
		Hooks: make(logrus.LevelHooks),
		Level: level,
	}
}

func setLogger(l *logrus.Logger) {
	logMu.Lock()
	logger = l
	logMu.Unlock()
}

// Logger returns the logger installed by Load.
func Logger() *logrus.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	return logger
}
