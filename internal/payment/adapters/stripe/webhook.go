package stripe

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/checkout/internal/clock"
	"github.com/smallbiznis/checkout/internal/config"
	paymentdomain "github.com/smallbiznis/checkout/internal/payment/domain"
)

const (
	Provider = "stripe"

	DefaultTolerance = 300 * time.Second
)

type Verifier struct {
	secret    string
	tolerance time.Duration
	clock     clock.Clock
}

func NewVerifier(cfg config.Config, clk clock.Clock) (paymentdomain.Verifier, error) {
	secret := strings.TrimSpace(cfg.Stripe.WebhookSecret)
	if secret == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}
	tolerance := cfg.Stripe.WebhookTolerance
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Verifier{
		secret:    secret,
		tolerance: tolerance,
		clock:     clk,
	}, nil
}

func (v *Verifier) Provider() string {
	return Provider
}

// Verify authenticates payload against the Stripe-Signature header and, on
// success, parses the event envelope. payload must be the exact request body.
func (v *Verifier) Verify(ctx context.Context, payload []byte, headers http.Header) paymentdomain.Result {
	raw := strings.TrimSpace(headers.Get(SignatureHeader))
	if raw == "" {
		return paymentdomain.Rejected(paymentdomain.ErrMissingSignature)
	}

	header, err := parseSignatureHeader(raw)
	if err != nil {
		return paymentdomain.Rejected(paymentdomain.ErrInvalidSignatureHeader)
	}

	expected := computeSignature(v.secret, header.timestamp, payload)
	matched := false
	for _, signature := range header.signatures {
		if hmac.Equal(signature, expected) {
			matched = true
			break
		}
	}
	if !matched {
		return paymentdomain.Rejected(paymentdomain.ErrSignatureMismatch)
	}

	if !v.withinTolerance(header.timestamp) {
		return paymentdomain.Rejected(paymentdomain.ErrTimestampOutsideTolerance)
	}

	event, err := parseEvent(payload)
	if err != nil {
		return paymentdomain.Rejected(err)
	}
	return paymentdomain.Verified(event)
}

func (v *Verifier) withinTolerance(signedAt time.Time) bool {
	skew := v.clock.Now().Sub(signedAt)
	if skew < 0 {
		skew = -skew
	}
	return skew <= v.tolerance
}

type stripeEvent struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Created    int64           `json:"created"`
	Livemode   bool            `json:"livemode"`
	APIVersion string          `json:"api_version"`
	Data       stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

func parseEvent(payload []byte) (*paymentdomain.WebhookEvent, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" || strings.TrimSpace(event.Type) == "" {
		return nil, paymentdomain.ErrInvalidPayload
	}

	var createdAt time.Time
	if event.Created > 0 {
		createdAt = time.Unix(event.Created, 0).UTC()
	}

	return &paymentdomain.WebhookEvent{
		Provider:   Provider,
		ID:         strings.TrimSpace(event.ID),
		Type:       strings.TrimSpace(event.Type),
		APIVersion: event.APIVersion,
		LiveMode:   event.Livemode,
		CreatedAt:  createdAt,
		Object:     event.Data.Object,
		RawPayload: payload,
	}, nil
}
