package logging

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey string

// RequestIDKey is the context key the HTTP middleware stores request ids under.
const RequestIDKey ctxKey = "request_id"

type Logger struct {
	*zap.Logger
}

func NewLogger(level string, development bool) (*Logger, error) {
	config := zap.NewProductionConfig()
	if development {
		config = zap.NewDevelopmentConfig()
	}

	if level == "" {
		level = "info"
	}
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{logger}, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zap.NewNop()}
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func (l *Logger) WithRequestID(ctx context.Context) *zap.Logger {
	if reqID, ok := ctx.Value(RequestIDKey).(string); ok {
		return l.With(zap.String("request_id", reqID))
	}
	return l.Logger
}

// OrNop returns logger, or a no-op logger when it is nil.
func OrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
