package logger

import corelogger "github.com/whr-sorting/simbridge/core/logger"

// Logger mirrors the core logger interface.
type Logger = corelogger.Logger

// NopLogger implements Logger with no-op methods.
type NopLogger = corelogger.NopLogger

// New returns a Logger for the given component. The output format is selected
// via the APP_ENV variable and the minimum level via SetLevel.
func New(component string) Logger {
	return NewZerologLogger(component)
}
