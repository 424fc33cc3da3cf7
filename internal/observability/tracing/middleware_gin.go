package tracing

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/checkout/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/smallbiznis/checkout/http"

// untracedRoutes are scraped or probed often enough to drown real traffic.
var untracedRoutes = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// GinMiddleware starts a server span per request, continuing any trace the
// caller propagated.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer(instrumentationName)
	return func(c *gin.Context) {
		if _, skip := untracedRoutes[c.FullPath()]; skip {
			c.Next()
			return
		}

		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, spanName(c.Request.Method, c.FullPath()), trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			ctx = withRequestBaggage(ctx, requestID)
			span.SetAttributes(attribute.String("request_id", requestID))
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		finishSpan(span, c)
	}
}

func spanName(method, route string) string {
	if strings.TrimSpace(route) == "" {
		route = "unknown"
	}
	return "HTTP " + strings.ToUpper(method) + " " + route
}

func withRequestBaggage(ctx context.Context, requestID string) context.Context {
	member, err := baggage.NewMember("request_id", requestID)
	if err != nil {
		return ctx
	}
	bag, err := baggage.FromContext(ctx).SetMember(member)
	if err != nil {
		return ctx
	}
	return baggage.ContextWithBaggage(ctx, bag)
}

func finishSpan(span trace.Span, c *gin.Context) {
	status := c.Writer.Status()
	attrs := []attribute.KeyValue{
		attribute.String("http.method", c.Request.Method),
		attribute.String("http.route", c.FullPath()),
		attribute.Int("http.status_code", status),
	}
	if eventType := c.GetString("webhook_event_type"); eventType != "" {
		attrs = append(attrs, attribute.String("webhook.event_type", eventType))
	}
	span.SetAttributes(SafeAttributes(attrs...)...)

	lastErr := c.Errors.Last()
	switch {
	case status >= http.StatusInternalServerError:
		if lastErr != nil {
			if safeErr := SafeError(lastErr.Err); safeErr != nil {
				span.RecordError(safeErr)
			}
		}
		span.SetStatus(codes.Error, http.StatusText(status))
	case lastErr != nil:
		// Client errors stay unset per OTel HTTP conventions; keep the reason visible.
		span.AddEvent("request rejected", trace.WithAttributes(
			attribute.String("error", lastErr.Err.Error()),
		))
	}
}
