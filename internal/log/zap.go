package log

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/defenseunicorns/uds-preflight-scan/pkg/types"
)

// TimeLayout is the timestamp format used on every log line.
const TimeLayout = "20060102-15:04:05"

// zapLogger is a struct that implements the Logger interface.
type zapLogger struct {
	logger *zap.Logger
}

// contextKey is the key used to store the logger in the context.
type contextKey string

// loggerKey is the key used to store the logger in the context.
const loggerKey contextKey = "logger"

// NewLogger returns the logger stored in ctx, or a new info-level console logger writing to stderr.
// This func will panic if the context is nil.
func NewLogger(ctx context.Context) types.Logger {
	if ctx == nil {
		panic("ctx cannot be nil")
	}
	if logger, ok := ctx.Value(loggerKey).(types.Logger); ok {
		return logger
	}
	return newZapLogger(zapcore.AddSync(os.Stderr), zapcore.InfoLevel)
}

// New builds a console logger at the given level ("debug", "info", "warn", "error").
func New(w io.Writer, level string) (types.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return newZapLogger(zapcore.AddSync(w), lvl), nil
}

func newZapLogger(ws zapcore.WriteSyncer, lvl zapcore.Level) *zapLogger {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout(TimeLayout)
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encCfg.CallerKey = ""
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), ws, lvl)
	return &zapLogger{logger: zap.New(core)}
}

// WithLogger returns a new context with the logger set.
// This func will panic if the context is nil.
func WithLogger(ctx context.Context, logger types.Logger) context.Context {
	if ctx == nil {
		panic("ctx cannot be nil")
	}
	return context.WithValue(ctx, loggerKey, logger)
}

func toZapFields(fields []interface{}) []zap.Field {
	zapFields := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		if zf, ok := field.(zap.Field); ok {
			zapFields = append(zapFields, zf)
		}
	}
	return zapFields
}

// Debug logs a debug message with the given fields.
func (l *zapLogger) Debug(msg string, fields ...interface{}) {
	l.logger.Debug(msg, toZapFields(fields)...)
}

// Info logs an info message with the given fields.
func (l *zapLogger) Info(msg string, fields ...interface{}) {
	l.logger.Info(msg, toZapFields(fields)...)
}

// Warn logs a warn message with the given fields.
func (l *zapLogger) Warn(msg string, fields ...interface{}) {
	l.logger.Warn(msg, toZapFields(fields)...)
}

// Error logs an error message with the given fields.
func (l *zapLogger) Error(msg string, fields ...interface{}) {
	l.logger.Error(msg, toZapFields(fields)...)
}

// Fatalf logs a fatal message with the given fields and exits.
func (l *zapLogger) Fatalf(msg string, fields ...interface{}) {
	l.logger.Fatal(msg, toZapFields(fields)...)
}

// With returns a child logger carrying fields.
func (l *zapLogger) With(fields ...interface{}) types.Logger {
	return &zapLogger{logger: l.logger.With(toZapFields(fields)...)}
}
