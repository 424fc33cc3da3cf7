package domain

import (
	"context"
	"net/http"
)

// Verifier authenticates a raw webhook body and parses its envelope.
type Verifier interface {
	Provider() string
	Verify(ctx context.Context, payload []byte, headers http.Header) Result
}

// Handler reacts to one verified event type.
type Handler func(ctx context.Context, event *WebhookEvent)

type Service interface {
	Receive(ctx context.Context, payload []byte, headers http.Header) Result
}
