package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/checkout/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	HeaderRequestID = "X-Request-Id"

	// WebhookEventTypeKey is the gin context key handlers set once a webhook
	// delivery is verified.
	WebhookEventTypeKey = "webhook_event_type"

	requestIDKey = "request_id"
)

// MiddlewareConfig controls request logging behavior.
type MiddlewareConfig struct {
	Debug           bool
	ErrorClassifier func(err error) (string, string)
}

// GinMiddleware assigns a request id and writes one http_request entry per request.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := ensureRequestID(c)
		c.Request = c.Request.WithContext(obscontext.WithRequestID(c.Request.Context(), requestID))

		c.Next()

		route := c.FullPath()
		if strings.TrimSpace(route) == "" {
			route = "unknown"
		}
		fields := requestFields(c, route, start)
		fields = append(fields, errorFields(c, cfg)...)

		logRequest(FromContext(c.Request.Context()), route, c.Writer.Status(), fields)
	}
}

func requestFields(c *gin.Context, route string, start time.Time) []zap.Field {
	fields := []zap.Field{
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("route", route),
		zap.Int("status", c.Writer.Status()),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		zap.Int64("bytes_in", max(c.Request.ContentLength, 0)),
		zap.Int("bytes_out", max(c.Writer.Size(), 0)),
		zap.String("client_ip", c.ClientIP()),
	}
	if eventType := strings.TrimSpace(c.GetString(WebhookEventTypeKey)); eventType != "" {
		fields = append(fields, zap.String(WebhookEventTypeKey, eventType))
	}
	return fields
}

func errorFields(c *gin.Context, cfg MiddlewareConfig) []zap.Field {
	lastErr := c.Errors.Last()
	if lastErr == nil {
		return nil
	}

	var errorType, errorCode string
	if cfg.ErrorClassifier != nil {
		errorType, errorCode = cfg.ErrorClassifier(lastErr.Err)
	}
	fields := []zap.Field{
		zap.String("error_type", errorType),
		zap.String("error_code", errorCode),
	}
	if cfg.Debug {
		fields = append(fields, zap.Stack("stack"))
	}
	return fields
}

func ensureRequestID(c *gin.Context) string {
	requestID := strings.TrimSpace(c.GetHeader(HeaderRequestID))
	if requestID == "" {
		requestID = strings.TrimSpace(c.GetString(requestIDKey))
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}

	c.Set(requestIDKey, requestID)
	c.Header(HeaderRequestID, requestID)
	return requestID
}

// requestLevel keeps scrapes and probes out of info logs and surfaces
// rejected webhook deliveries as warnings.
func requestLevel(route string, status int) zapcore.Level {
	switch {
	case isProbe(route):
		return zapcore.DebugLevel
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case isWebhook(route) && status >= http.StatusBadRequest:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}

func logRequest(log *zap.Logger, route string, status int, fields []zap.Field) {
	if log == nil {
		return
	}
	if entry := log.Check(requestLevel(route, status), "http_request"); entry != nil {
		entry.Write(fields...)
	}
}

func isProbe(route string) bool {
	route = strings.TrimSpace(route)
	return strings.EqualFold(route, "/metrics") || strings.EqualFold(route, "/health")
}

func isWebhook(route string) bool {
	return strings.EqualFold(strings.TrimSpace(route), "/webhook")
}
