package common

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

func getLogger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.NewWithOptions(os.Stderr, log.Options{
			ReportCaller:    true,
			ReportTimestamp: true,
			TimeFormat:      time.RFC3339,
			Prefix:          "oxy",
			CallerOffset:    1,
		})
		logger.SetLevel(log.InfoLevel)
	})
	return logger
}

// SetLogLevel changes the level of the shared engine logger.
// Unknown level names fall back to info.
//
// Parameters:
//   - level: one of "debug", "info", "warn", "error"
func SetLogLevel(level string) {
	lvl, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = log.InfoLevel
	}
	getLogger().SetLevel(lvl)
}

// Logger returns the shared engine logger for callers that want structured key/value logging.
//
// Returns:
//   - *log.Logger: the process-wide logger
func Logger() *log.Logger {
	return getLogger()
}

// LogDebug logs a formatted message at debug level.
func LogDebug(msg string, args ...any) {
	getLogger().Debugf(msg, args...)
}

// LogInfo logs a formatted message at info level.
func LogInfo(msg string, args ...any) {
	getLogger().Infof(msg, args...)
}

// LogWarn logs a formatted message at warn level.
func LogWarn(msg string, args ...any) {
	getLogger().Warnf(msg, args...)
}

// LogError logs a formatted message at error level.
func LogError(msg string, args ...any) {
	getLogger().Errorf(msg, args...)
}
