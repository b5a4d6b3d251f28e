package logging

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/blinklabs-io/cnftvend/internal/config"
)

var globalLogger *slog.Logger

func Configure() {
	cfg := config.GetConfig()
	var level slog.Level
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				// Format the time attribute to use RFC3339 or your custom format
				// Rename the time key to timestamp
				return slog.String(
					"timestamp",
					a.Value.Time().Format(time.RFC3339),
				)
			}
			return a
		},
		Level: level,
	})
	globalLogger = slog.New(handler).With("component", "vending-machine")
}

func GetLogger() *slog.Logger {
	if globalLogger == nil {
		Configure()
	}
	return globalLogger
}

// PrintfLogger adapts GetLogger() to the printf-style logging interface
// third-party libraries (badger, apollo) expect.
type PrintfLogger struct {
	logger *slog.Logger
}

// NewPrintfLogger wraps the package logger for callers that want
// fmt.Sprintf-style level methods instead of slog's key/value attrs.
func NewPrintfLogger() *PrintfLogger {
	return &PrintfLogger{logger: GetLogger()}
}

func (p *PrintfLogger) Debugf(msg string, args ...any) { p.logger.Debug(fmt.Sprintf(msg, args...)) }
func (p *PrintfLogger) Infof(msg string, args ...any)  { p.logger.Info(fmt.Sprintf(msg, args...)) }
func (p *PrintfLogger) Warnf(msg string, args ...any)  { p.logger.Warn(fmt.Sprintf(msg, args...)) }
func (p *PrintfLogger) Errorf(msg string, args ...any) { p.logger.Error(fmt.Sprintf(msg, args...)) }
