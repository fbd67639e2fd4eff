package events

import (
	"github.com/ThreeDotsLabs/watermill"
	"go.uber.org/zap"

	"github.com/hookgate/hookgate/internal/observability"
)

// watermillLogger routes watermill's internal logging into the service logger.
type watermillLogger struct {
	base   observability.Logger
	fields watermill.LogFields
}

// NewWatermillLogger adapts logger to watermill.LoggerAdapter.
func NewWatermillLogger(logger observability.Logger) watermill.LoggerAdapter {
	if logger == nil {
		logger = observability.Server()
	}
	return &watermillLogger{base: logger}
}

func (l *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.base.Error(msg, append(l.zapFields(fields), zap.Error(err))...)
}

func (l *watermillLogger) Info(msg string, fields watermill.LogFields) {
	l.base.Info(msg, l.zapFields(fields)...)
}

func (l *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.base.Debug(msg, l.zapFields(fields)...)
}

// Trace is folded into debug; the service logger has no trace level.
func (l *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.base.Debug(msg, l.zapFields(fields)...)
}

func (l *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillLogger{base: l.base, fields: l.fields.Add(fields)}
}

func (l *watermillLogger) zapFields(fields watermill.LogFields) []zap.Field {
	merged := l.fields.Add(fields)
	out := make([]zap.Field, 0, len(merged))
	for k, v := range merged {
		out = append(out, zap.Any(k, v))
	}
	return out
}
