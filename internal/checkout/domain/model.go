package domain

import "encoding/json"

const (
	ModePayment                      = "payment"
	SetupFutureUsageOffSession       = "off_session"
	DefaultQuantity            int64 = 1
)

type CreateCheckoutSessionRequest struct {
	Quantity *int64 `json:"quantity"`
}

type CreateCheckoutSessionResponse struct {
	SessionID string `json:"sessionId"`
}

// PublicConfig is safe to hand to a browser client.
type PublicConfig struct {
	PublishableKey string `json:"publishableKey"`
	UnitAmount     int64  `json:"unitAmount"`
	Currency       string `json:"currency"`
}

// SessionRequest is the fixed-shape session creation request sent to the processor.
type SessionRequest struct {
	PriceID            string
	Quantity           int64
	PaymentMethodTypes []string
	SetupFutureUsage   string
	Mode               string
	SuccessURL         string
	CancelURL          string
}

// Session is a processor-owned checkout session. Raw is the processor's own
// JSON representation and is passed through to callers unchanged.
type Session struct {
	ID  string
	Raw json.RawMessage
}

type Price struct {
	ID         string
	UnitAmount int64
	Currency   string
}
