package logging

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type ctxKey struct{}

var (
	defaultLogger     *zap.Logger
	defaultLoggerOnce sync.Once
	confMu            sync.Mutex
	conf              = Config{Level: zapcore.InfoLevel}
)

type Config struct {
	Level    zapcore.Level
	FilePath string
}

// SetConfig must be called before the first DefaultLogger call to have any effect.
func SetConfig(c *Config) {
	confMu.Lock()
	defer confMu.Unlock()
	conf = *c
}

// ParseLevel falls back to info for unknown names.
func ParseLevel(s string) zapcore.Level {
	lvl, err := zapcore.ParseLevel(s)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

func NewLogger(c *Config) *zap.Logger {
	level := zap.NewAtomicLevelAt(c.Level)

	ec := zap.NewProductionEncoderConfig()
	ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	ec.CallerKey = ""
	ec.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format("02/01/2006 03:04 PM"))
	}

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(ec), zapcore.AddSync(os.Stdout), level),
	}

	if c.FilePath != "" {
		fileEC := zap.NewProductionEncoderConfig()
		fileEC.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileEC),
			zapcore.AddSync(&lumberjack.Logger{
				Filename:   c.FilePath,
				MaxSize:    10,
				MaxBackups: 3,
				MaxAge:     15,
				Compress:   true,
			}), level))
	}

	return zap.New(zapcore.NewTee(cores...))
}

func DefaultLogger() *zap.Logger {
	defaultLoggerOnce.Do(func() {
		confMu.Lock()
		c := conf
		confMu.Unlock()
		defaultLogger = NewLogger(&c)
	})
	return defaultLogger
}

func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

func FromContext(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return DefaultLogger()
	}
	if logger, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok {
		return logger
	}
	return DefaultLogger()
}
