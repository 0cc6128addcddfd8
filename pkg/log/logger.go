package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/YuminosukeSato/eegharmony/pkg/errors"
)

var (
	providerMu      sync.RWMutex
	defaultProvider LoggerProvider = NewZerologProvider(os.Stderr, LevelInfo)
)

// GetLogger returns the process-wide logger.
func GetLogger() Logger {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return defaultProvider.GetLogger()
}

// GetLoggerWithName returns the process-wide logger tagged with a component name.
func GetLoggerWithName(name string) Logger {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return defaultProvider.GetLoggerWithName(name)
}

// SetProvider replaces the process-wide logger provider.
func SetProvider(p LoggerProvider) {
	providerMu.Lock()
	defer providerMu.Unlock()
	defaultProvider = p
}

// Configure installs a zerolog provider writing to w at the given level.
// When pretty is true the output is human-readable console text instead of JSON.
func Configure(w io.Writer, level string, pretty bool) error {
	lvl, ok := ParseLevel(level)
	if !ok {
		return errors.NewValidationError("log_level", "must be one of debug, info, warn, error", level)
	}
	if pretty {
		w = zerolog.ConsoleWriter{Out: w}
	}
	SetProvider(NewZerologProvider(w, lvl))
	InstallWarningBridge()
	return nil
}

// InstallWarningBridge routes errors.Warn through the process-wide logger.
func InstallWarningBridge() {
	errors.SetZerologWarnFunc(func(w error) {
		logger := GetLoggerWithName("warnings")
		if zl, ok := logger.(*ZerologLogger); ok {
			zl.WarnObject(w)
			return
		}
		logger.Warn(w.Error())
	})
}

// SetupLogger configures slog's default logger to emit JSON with stacktraces
// extracted from cockroachdb/errors values.
func SetupLogger(loglevel string) {
	ops := slog.HandlerOptions{
		AddSource: true,
		Level:     ToLogLevel(loglevel),
	}
	handler := slog.NewJSONHandler(os.Stdout, &ops)
	errFmtHandler := WrapByErrFmtHandler(handler)
	slog.SetDefault(slog.New(errFmtHandler))
}

// ToLogLevel converts a level name into a slog.Level.
func ToLogLevel(level string) slog.Level {
	switch level {
	case "info":
		return slog.LevelInfo
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		panic(fmt.Sprintf("invalid log level :%s", level))
	}
}

const (
	ErrAttrKey        = "error"
	StacktraceAttrKey = "stacktrace"
)

// ErrAttr is a wrapper to pass err to slog.
func ErrAttr(err error) slog.Attr {
	return slog.Any(ErrAttrKey, err)
}
