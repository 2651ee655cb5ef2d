// Package chizap logs chi requests with zap.
package chizap

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Fn func(ctx context.Context) []zapcore.Field

type Config struct {
	TimeFormat      string
	UTC             bool
	SkipPaths       []string
	SkipPathRegexps []*regexp.Regexp
	Context         Fn
}

func (c *Config) skip(path string) bool {
	for _, p := range c.SkipPaths {
		if p == path {
			return true
		}
	}
	for _, re := range c.SkipPathRegexps {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

// ChizapWithConfig logs one line per request. Server errors are logged at
// error level, everything else at info.
func ChizapWithConfig(logger *zap.Logger, conf *Config) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			path := r.URL.Path
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				if conf.skip(path) {
					return
				}
				end := time.Now()
				fields := []zapcore.Field{
					zap.Int("status", ww.Status()),
					zap.String("method", r.Method),
					zap.String("path", path),
					zap.String("query", r.URL.RawQuery),
					zap.String("ip", r.RemoteAddr),
					zap.String("user-agent", r.UserAgent()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("latency", end.Sub(start)),
				}
				if id := middleware.GetReqID(r.Context()); id != "" {
					fields = append(fields, zap.String("request-id", id))
				}
				if conf.TimeFormat != "" {
					if conf.UTC {
						end = end.UTC()
					}
					fields = append(fields, zap.String("time", end.Format(conf.TimeFormat)))
				}
				if conf.Context != nil {
					fields = append(fields, conf.Context(r.Context())...)
				}
				if ww.Status() >= http.StatusInternalServerError {
					logger.Error(path, fields...)
					return
				}
				logger.Info(path, fields...)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
