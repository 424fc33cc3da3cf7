package webhook

import (
	"context"
	"strings"
	"sync"

	"github.com/smallbiznis/checkout/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/checkout/internal/payment/domain"
	"go.uber.org/zap"
)

// Dispatcher routes verified events to the handler registered for their type.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]paymentdomain.Handler
	log      *zap.Logger
	metrics  *metrics.Metrics
}

// NewDispatcher returns a dispatcher with the checkout.session handlers registered.
func NewDispatcher(log *zap.Logger, m *metrics.Metrics) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	d := &Dispatcher{
		handlers: make(map[string]paymentdomain.Handler),
		log:      log.Named("payment.dispatcher"),
		metrics:  m,
	}
	d.Register(paymentdomain.EventTypeCheckoutSessionCompleted, d.checkoutSessionHandler("checkout session completed"))
	d.Register(paymentdomain.EventTypeCheckoutSessionAsyncPaymentSucceeded, d.checkoutSessionHandler("checkout session async payment succeeded"))
	d.Register(paymentdomain.EventTypeCheckoutSessionAsyncPaymentFailed, d.checkoutSessionHandler("checkout session async payment failed"))
	return d
}

// Register replaces any handler already bound to eventType.
func (d *Dispatcher) Register(eventType string, handler paymentdomain.Handler) {
	eventType = strings.TrimSpace(eventType)
	if eventType == "" || handler == nil {
		return
	}
	d.mu.Lock()
	d.handlers[eventType] = handler
	d.mu.Unlock()
}

// Dispatch runs the handler for event.Type and reports whether one was found.
// Unknown types are ignored.
func (d *Dispatcher) Dispatch(ctx context.Context, event *paymentdomain.WebhookEvent) bool {
	if event == nil {
		return false
	}
	d.mu.RLock()
	handler, ok := d.handlers[event.Type]
	d.mu.RUnlock()
	if !ok {
		d.log.Debug("webhook event ignored",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type),
		)
		return false
	}
	handler(ctx, event)
	return true
}

func (d *Dispatcher) checkoutSessionHandler(message string) paymentdomain.Handler {
	return func(ctx context.Context, event *paymentdomain.WebhookEvent) {
		session := event.CheckoutSession()
		d.log.Info(message,
			zap.String("provider", event.Provider),
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type),
			zap.String("session_id", session.ID),
			zap.String("payment_status", session.PaymentStatus),
			zap.Bool("livemode", event.LiveMode),
		)
		d.metrics.RecordWebhookEvent(ctx, event.Provider, event.Type)
	}
}
