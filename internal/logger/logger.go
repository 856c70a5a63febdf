// Package logger holds the process-wide zap logger.
//
// The logger is a no-op until Initialize is called, so packages can log freely
// from tests and library code. Output goes to stderr because stdout carries
// command output and the MCP stdio transport.
package logger

import (
	"context"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Standard field names for structured logging.
const (
	FieldRequestID  = "request_id"
	FieldComponent  = "component"
	FieldOperation  = "operation"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatus     = "status"
	FieldDurationMS = "duration_ms"
	FieldError      = "error"
	FieldTagID      = "tag_id"
	FieldInstanceID = "instance_id"
	FieldCount      = "count"
	FieldDialect    = "dialect"
)

var (
	// Logger is the global logger instance.
	Logger *zap.SugaredLogger
	// JSONOutput reports whether Initialize selected JSON encoding.
	JSONOutput bool
)

type contextKey string

const requestIDKey contextKey = "logger_request_id"

func init() {
	Logger = zap.NewNop().Sugar()
}

// ParseLevel maps a level name onto a zap level. Empty means info.
func ParseLevel(level string) (zapcore.Level, error) {
	if level == "" {
		return zapcore.InfoLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return l, errors.Wrapf(err, "parse log level %q", level)
	}
	return l, nil
}

// Initialize replaces the global logger. jsonOutput selects the production JSON
// encoder; otherwise a console encoder is used.
func Initialize(jsonOutput bool, level string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	JSONOutput = jsonOutput

	var zapLogger *zap.Logger
	if jsonOutput {
		config := zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(lvl)
		config.OutputPaths = []string{"stderr"}
		zapLogger, err = config.Build()
		if err != nil {
			return errors.Wrap(err, "build json logger")
		}
	} else {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapLogger = zap.New(
			zapcore.NewCore(
				zapcore.NewConsoleEncoder(encCfg),
				zapcore.AddSync(os.Stderr),
				lvl,
			),
		)
	}

	Logger = zapLogger.Sugar()
	return nil
}

// Cleanup flushes buffered entries.
func Cleanup() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}

// ComponentLogger returns a named child of the global logger.
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// WithRequestID stores a request id on the context for FromContext.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID returns the request id stored on ctx, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// FromContext returns base with the context's request id attached.
func FromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	if id := RequestID(ctx); id != "" {
		return base.With(FieldRequestID, id)
	}
	return base
}
