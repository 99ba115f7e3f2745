package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/annel0/voxel-surface/internal/logging"
)

// RequestLogger снабжает каждый HTTP-запрос trace-ID (из span OpenTelemetry
// или новый UUID) и пишет краткие логи в логгер компонента (nil: глобальный logging).
type RequestLogger struct {
	logger *logging.Logger
}

func NewRequestLogger(logger *logging.Logger) *RequestLogger { return &RequestLogger{logger: logger} }

// log пишет строку запроса: ошибки 5xx на ERROR, 4xx на WARN, остальное на DEBUG
func (rl *RequestLogger) log(status int, format string, args ...interface{}) {
	switch {
	case rl.logger == nil && status >= 500:
		logging.Error(format, args...)
	case rl.logger == nil && status >= 400:
		logging.Warn(format, args...)
	case rl.logger == nil:
		logging.Debug(format, args...)
	case status >= 500:
		rl.logger.Error(format, args...)
	case status >= 400:
		rl.logger.Warn(format, args...)
	default:
		rl.logger.Debug(format, args...)
	}
}

func (rl *RequestLogger) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Пытаемся извлечь trace-id из OpenTelemetry, если уже создан.
		span := trace.SpanFromContext(c.Request.Context())
		var traceID string
		if span.SpanContext().IsValid() {
			traceID = span.SpanContext().TraceID().String()
		} else {
			traceID = uuid.NewString()
		}
		c.Set("trace_id", traceID)
		c.Header("X-Trace-ID", traceID)

		start := time.Now()
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		c.Next()

		status := c.Writer.Status()
		rl.log(status, "[HTTP] %s %s %d %s trace=%s", method, path, status, time.Since(start), traceID)
	}
}
