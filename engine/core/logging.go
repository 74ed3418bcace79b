package core

import (
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

var once sync.Once

type logger struct {
	*log.Logger
}

var singleton *logger

var (
	subsystemMutex   sync.Mutex
	subsystemLoggers = make(map[string]*log.Logger)
)

func getLogger() *logger {
	if singleton == nil {
		once.Do(
			func() {
				l := NewLogger("Retina 🔺 ")
				l.SetLevel(log.DebugLevel)
				singleton = &logger{l}
			})
	}
	return singleton
}

// NewLogger builds a standalone logger with the engine's output options.
func NewLogger(prefix string) *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{
		ReportCaller:    true,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Prefix:          prefix,
	})
}

// SubsystemLogger returns the cached logger for the named subsystem. Components
// take it as the default when no logger is injected through their config.
func SubsystemLogger(name string) *log.Logger {
	subsystemMutex.Lock()
	defer subsystemMutex.Unlock()

	if l, ok := subsystemLoggers[name]; ok {
		return l
	}
	l := getLogger().With("subsystem", name)
	subsystemLoggers[name] = l
	return l
}

// SetLogLevel changes the level of the engine logger and every subsystem logger.
func SetLogLevel(level string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	getLogger().SetLevel(lvl)

	subsystemMutex.Lock()
	defer subsystemMutex.Unlock()
	for _, l := range subsystemLoggers {
		l.SetLevel(lvl)
	}
	return nil
}

func LogDebug(msg string, args ...interface{}) {
	getLogger().Debugf(msg, args...)
}

func LogInfo(msg string, args ...interface{}) {
	getLogger().Infof(msg, args...)
}

func LogWarn(msg string, args ...interface{}) {
	getLogger().Warnf(msg, args...)
}

func LogError(msg string, args ...interface{}) {
	getLogger().Errorf(msg, args...)
}

func LogFatal(msg string, args ...interface{}) {
	getLogger().Fatalf(msg, args...)
}
