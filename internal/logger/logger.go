package logger

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CorrelationIDHeader carries the request correlation id in and out of the API.
const CorrelationIDHeader = "X-Correlation-ID"

const (
	correlationKey = "kpcloudCorrelationID"
	loggerKey      = "kpcloudLogger"
)

type ctxKey struct{}

// Init builds the process logger from LOG_LEVEL and KPCLOUD_ENV and installs it
// as the zap global.
func Init() (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if raw := strings.TrimSpace(os.Getenv("LOG_LEVEL")); raw != "" {
		if err := level.UnmarshalText([]byte(raw)); err != nil {
			return nil, err
		}
	}

	var cfg zap.Config
	if strings.EqualFold(os.Getenv("KPCLOUD_ENV"), "development") {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "time"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(l)
	return l, nil
}

// Middleware assigns a correlation id to every request, echoes it back and
// logs one line per request with a request-scoped logger.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(CorrelationIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(correlationKey, id)
		c.Header(CorrelationIDHeader, id)

		reqLog := zap.L().With(zap.String("correlation_id", id))
		c.Set(loggerKey, reqLog)
		c.Request = c.Request.WithContext(WithContext(c.Request.Context(), reqLog))

		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		switch {
		case c.Writer.Status() >= 500:
			reqLog.Error("request", fields...)
		case c.Writer.Status() >= 400:
			reqLog.Warn("request", fields...)
		default:
			reqLog.Info("request", fields...)
		}
	}
}

// CorrelationID returns the id assigned by Middleware, or "".
func CorrelationID(c *gin.Context) string {
	return c.GetString(correlationKey)
}

// WithContext stores l in ctx.
func WithContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the request-scoped logger stored in ctx, falling back to fallback
// and then to the zap global.
func FromContext(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	if fallback != nil {
		return fallback
	}
	return zap.L()
}
