package domain

import "context"

type Service interface {
	CreateCheckoutSession(ctx context.Context, req CreateCheckoutSessionRequest) (*CreateCheckoutSessionResponse, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*Session, error)
	GetPublicConfig(ctx context.Context) (*PublicConfig, error)
}

// Gateway is the payment processor boundary. Implementations surface every
// processor failure wrapped in ErrUpstream and never retry.
type Gateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	GetPrice(ctx context.Context, priceID string) (*Price, error)
}
