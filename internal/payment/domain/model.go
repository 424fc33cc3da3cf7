package domain

import (
	"encoding/json"
	"time"
)

// Event types the receiver reacts to. Any other type is acknowledged and ignored.
const (
	EventTypeCheckoutSessionCompleted             = "checkout.session.completed"
	EventTypeCheckoutSessionAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	EventTypeCheckoutSessionAsyncPaymentFailed    = "checkout.session.async_payment_failed"
)

// WebhookEvent is the verified envelope of a processor notification.
type WebhookEvent struct {
	Provider   string
	ID         string
	Type       string
	APIVersion string
	LiveMode   bool
	CreatedAt  time.Time
	Object     json.RawMessage
	RawPayload []byte
}

// CheckoutSessionObject holds the fields of data.object that are worth logging
// for checkout.session.* events.
type CheckoutSessionObject struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	AmountTotal   int64  `json:"amount_total"`
	Currency      string `json:"currency"`
	Mode          string `json:"mode"`
}

// CheckoutSession decodes data.object. A malformed object yields a zero value.
func (e *WebhookEvent) CheckoutSession() CheckoutSessionObject {
	var obj CheckoutSessionObject
	if e == nil || len(e.Object) == 0 {
		return obj
	}
	_ = json.Unmarshal(e.Object, &obj)
	return obj
}
