package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the application instruments. A nil *Metrics records nothing.
type Metrics struct {
	webhookEvents    metric.Int64Counter
	webhookRejected  metric.Int64Counter
	webhookVerify    metric.Float64Histogram
	checkoutSessions metric.Int64Counter
	rateLimitDenied  metric.Int64Counter
}

type counterDef struct {
	target *metric.Int64Counter
	name   string
	desc   string
}

func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(serviceName(cfg))
	m := &Metrics{}

	counters := []counterDef{
		{&m.webhookEvents, "checkout_webhook_events_total", "Verified webhook events by type."},
		{&m.webhookRejected, "checkout_webhook_rejected_total", "Webhook deliveries rejected during verification."},
		{&m.checkoutSessions, "checkout_sessions_total", "Checkout session creation attempts by outcome."},
		{&m.rateLimitDenied, "checkout_rate_limit_denied_total", "Requests denied by the checkout rate limiter."},
	}
	for _, def := range counters {
		c, err := meter.Int64Counter(def.name, metric.WithDescription(def.desc))
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", def.name, err)
		}
		*def.target = c
	}

	verify, err := meter.Float64Histogram("checkout_webhook_verify_seconds",
		metric.WithDescription("Time spent verifying webhook deliveries."),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("histogram checkout_webhook_verify_seconds: %w", err)
	}
	m.webhookVerify = verify

	return m, nil
}

func (m *Metrics) RecordWebhookEvent(ctx context.Context, provider, eventType string) {
	if m == nil {
		return
	}
	m.webhookEvents.Add(ctx, 1, withLabels("provider", provider, "event_type", eventType))
}

func (m *Metrics) RecordWebhookRejected(ctx context.Context, provider, reason string) {
	if m == nil {
		return
	}
	m.webhookRejected.Add(ctx, 1, withLabels("provider", provider, "reason", reason))
}

// RecordWebhookVerification observes how long one verification took.
// outcome is "verified" or "rejected".
func (m *Metrics) RecordWebhookVerification(ctx context.Context, provider, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.webhookVerify.Record(ctx, elapsed.Seconds(), withLabels("provider", provider, "outcome", outcome))
}

func (m *Metrics) RecordCheckoutSession(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.checkoutSessions.Add(ctx, 1, withLabels("outcome", outcome))
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	m.rateLimitDenied.Add(ctx, 1, withLabels("endpoint", endpoint, "reason", reason))
}

// withLabels builds a measurement option from key/value pairs, dropping any
// key outside the allow list.
func withLabels(kv ...string) metric.MeasurementOption {
	attrs := make([]attribute.KeyValue, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		attrs = append(attrs, attribute.String(kv[i], strings.TrimSpace(kv[i+1])))
	}
	return metric.WithAttributes(FilterAttributes(attrs...)...)
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"endpoint":    {},
	"status_code": {},
	"provider":    {},
	"event_type":  {},
	"outcome":     {},
	"reason":      {},
}

// FilterAttributes keeps only low-cardinality label keys. Session ids, event
// ids and client addresses never become labels.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; ok {
			filtered = append(filtered, attr)
		}
	}
	return filtered
}
