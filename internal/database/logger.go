package database

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	glogger "gorm.io/gorm/logger"

	"github.com/tgdrive/filebox/internal/logging"
)

// Logger sends gorm traces to the request logger found in the context.
type Logger struct {
	cfg glogger.Config
}

func NewLogger(slowThreshold time.Duration, level string) *Logger {
	cfg := glogger.Config{
		SlowThreshold:             slowThreshold,
		IgnoreRecordNotFoundError: true,
	}
	switch level {
	case "info":
		cfg.LogLevel = glogger.Info
	case "warn":
		cfg.LogLevel = glogger.Warn
	case "error":
		cfg.LogLevel = glogger.Error
	default:
		cfg.LogLevel = glogger.Silent
	}
	return &Logger{cfg: cfg}
}

func (l *Logger) LogMode(level glogger.LogLevel) glogger.Interface {
	newlogger := *l
	newlogger.cfg.LogLevel = level
	return &newlogger
}

func (l *Logger) Info(ctx context.Context, s string, args ...any) {
	if l.cfg.LogLevel >= glogger.Info {
		l.fromContext(ctx).Sugar().Infof(s, args...)
	}
}

func (l *Logger) Warn(ctx context.Context, s string, args ...any) {
	if l.cfg.LogLevel >= glogger.Warn {
		l.fromContext(ctx).Sugar().Warnf(s, args...)
	}
}

func (l *Logger) Error(ctx context.Context, s string, args ...any) {
	if l.cfg.LogLevel >= glogger.Error {
		l.fromContext(ctx).Sugar().Errorf(s, args...)
	}
}

func (l *Logger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.cfg.LogLevel <= glogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	fields := func() []zap.Field {
		sql, rows := fc()
		return []zap.Field{zap.String("sql", sql), zap.Int64("rows", rows), zap.Duration("elapsed", elapsed)}
	}

	switch {
	case err != nil && l.cfg.LogLevel >= glogger.Error &&
		(!errors.Is(err, gorm.ErrRecordNotFound) || !l.cfg.IgnoreRecordNotFoundError):
		l.fromContext(ctx).Error("db.query", append(fields(), zap.Error(err))...)
	case l.cfg.SlowThreshold != 0 && elapsed > l.cfg.SlowThreshold && l.cfg.LogLevel >= glogger.Warn:
		l.fromContext(ctx).Warn("db.slow_query", append(fields(), zap.Duration("threshold", l.cfg.SlowThreshold))...)
	case l.cfg.LogLevel == glogger.Info:
		l.fromContext(ctx).Debug("db.query", fields()...)
	}
}

func (l *Logger) fromContext(ctx context.Context) *zap.Logger {
	return logging.FromContext(ctx).WithOptions(zap.AddCallerSkip(3))
}
