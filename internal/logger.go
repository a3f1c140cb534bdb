package internal

import (
	"os"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// Logging levels.
const (
	LogLevelAll   = "all"
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
	LogLevelNone  = "none"
)

// Logging format.
const (
	LogFormatLogfmt = "logfmt"
	LogFormatJSON   = "json"
)

// NewLogger returns a log.Logger that prints in the provided format at the
// provided level with a UTC timestamp and the caller of the log entry. If non
// empty, the debug name is also appended as a field to all log lines.
func NewLogger(logLevel, logFormat, debugName string) log.Logger {
	var lvl level.Option

	switch strings.ToLower(logLevel) {
	case LogLevelAll:
		lvl = level.AllowAll()
	case LogLevelDebug:
		lvl = level.AllowDebug()
	case LogLevelWarn:
		lvl = level.AllowWarn()
	case LogLevelError:
		lvl = level.AllowError()
	case LogLevelNone:
		lvl = level.AllowNone()
	default:
		lvl = level.AllowInfo()
	}

	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	if logFormat == LogFormatJSON {
		logger = log.NewJSONLogger(log.NewSyncWriter(os.Stderr))
	}

	logger = level.NewFilter(logger, lvl)

	if debugName != "" {
		logger = log.With(logger, "name", debugName)
	}

	return log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
}
