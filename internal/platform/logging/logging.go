// Package logging provides component-scoped structured loggers backed by zap.
package logging

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Fields carries structured context for one log line.
type Fields map[string]any

// Logger provides logging functionality with structured fields.
type Logger interface {
	Debug(msg string, fields Fields)
	Info(msg string, fields Fields)
	Warn(msg string, fields Fields)
	Error(msg string, err error, fields Fields)
	// With returns a logger that adds fields to every line.
	With(fields Fields) Logger
}

// Config selects level and encoding for zap loggers.
type Config struct {
	Level  string `env:"ZENITE_LOG_LEVEL"  envDefault:"info"`
	Format string `env:"ZENITE_LOG_FORMAT" envDefault:"json"`
}

// ZapLogger implements Logger using zap.
type ZapLogger struct {
	logger    *zap.Logger
	component string
	context   Fields
}

// New builds a zap logger for component.
func New(component string, cfg Config) (*ZapLogger, error) {
	level, err := zapcore.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	zapCfg := zap.NewProductionConfig()
	if strings.EqualFold(strings.TrimSpace(cfg.Format), "console") {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}
	return FromZap(logger, component), nil
}

// FromZap wraps an existing zap logger.
func FromZap(logger *zap.Logger, component string) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{
		logger:    logger.With(zap.String("component", component)),
		component: component,
	}
}

// Nop returns a logger that discards everything.
func Nop() Logger {
	return FromZap(zap.NewNop(), "")
}

// Debug logs a debug message.
func (z *ZapLogger) Debug(msg string, fields Fields) {
	z.logger.Debug(msg, z.zapFields(fields)...)
}

// Info logs an info message.
func (z *ZapLogger) Info(msg string, fields Fields) {
	z.logger.Info(msg, z.zapFields(fields)...)
}

// Warn logs a warning message.
func (z *ZapLogger) Warn(msg string, fields Fields) {
	z.logger.Warn(msg, z.zapFields(fields)...)
}

// Error logs an error message.
func (z *ZapLogger) Error(msg string, err error, fields Fields) {
	zapFields := z.zapFields(fields)
	if err != nil {
		zapFields = append(zapFields, zap.Error(err))
	}
	z.logger.Error(msg, zapFields...)
}

// With returns a logger carrying additional context fields.
func (z *ZapLogger) With(fields Fields) Logger {
	merged := make(Fields, len(z.context)+len(fields))
	for k, v := range z.context {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &ZapLogger{
		logger:    z.logger,
		component: z.component,
		context:   merged,
	}
}

// Sync flushes buffered entries.
func (z *ZapLogger) Sync() error {
	return z.logger.Sync()
}

// zapFields merges context and call fields in key order; call fields win.
func (z *ZapLogger) zapFields(fields Fields) []zap.Field {
	if len(z.context) == 0 && len(fields) == 0 {
		return nil
	}
	merged := make(Fields, len(z.context)+len(fields))
	for k, v := range z.context {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		out = append(out, zap.Any(k, merged[k]))
	}
	return out
}
