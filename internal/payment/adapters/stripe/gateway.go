package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	checkoutdomain "github.com/smallbiznis/checkout/internal/checkout/domain"
	"github.com/smallbiznis/checkout/internal/config"
	"github.com/sony/gobreaker/v2"
	stripeapi "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.uber.org/zap"
)

const (
	defaultRequestTimeout = 10 * time.Second

	breakerFailureThreshold = 5
	breakerOpenTimeout      = 30 * time.Second
)

// Gateway talks to the Stripe REST API. Calls are bounded by a per-call
// timeout, never retried, and short-circuited while the breaker is open.
type Gateway struct {
	api     *client.API
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker[any]
	log     *zap.Logger
}

func NewGateway(cfg config.Config, log *zap.Logger) (checkoutdomain.Gateway, error) {
	secretKey := strings.TrimSpace(cfg.Stripe.SecretKey)
	if secretKey == "" {
		return nil, config.ErrMissingSecretKey
	}
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("stripe.gateway")

	timeout := cfg.Stripe.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	return &Gateway{
		api:     client.New(secretKey, newBackends(cfg.Stripe, timeout, log)),
		timeout: timeout,
		breaker: newBreaker(log),
		log:     log,
	}, nil
}

func newBackends(cfg config.StripeConfig, timeout time.Duration, log *zap.Logger) *stripeapi.Backends {
	httpClient := &http.Client{Timeout: timeout}
	backend := func(backendType stripeapi.SupportedBackend, url string) stripeapi.Backend {
		backendConfig := &stripeapi.BackendConfig{
			HTTPClient:        httpClient,
			MaxNetworkRetries: stripeapi.Int64(0),
			LeveledLogger:     log.Sugar(),
		}
		if url != "" {
			backendConfig.URL = stripeapi.String(url)
		}
		return stripeapi.GetBackendWithConfig(backendType, backendConfig)
	}

	// STRIPE_API_URL points every backend at a stub processor in tests.
	apiURL := strings.TrimSpace(cfg.APIURL)
	return &stripeapi.Backends{
		API:     backend(stripeapi.APIBackend, apiURL),
		Connect: backend(stripeapi.ConnectBackend, apiURL),
		Uploads: backend(stripeapi.UploadsBackend, apiURL),
	}
}

func newBreaker(log *zap.Logger) *gobreaker.CircuitBreaker[any] {
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "stripe",
		MaxRequests: 1,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
		// Rejections of our own request (4xx) say nothing about processor health.
		IsSuccessful: func(err error) bool {
			return err == nil || isClientError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}

func (g *Gateway) CreateSession(ctx context.Context, req checkoutdomain.SessionRequest) (*checkoutdomain.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripeapi.CheckoutSessionParams{
		Mode:               stripeapi.String(req.Mode),
		SuccessURL:         stripeapi.String(req.SuccessURL),
		CancelURL:          stripeapi.String(req.CancelURL),
		PaymentMethodTypes: stripeapi.StringSlice(req.PaymentMethodTypes),
		LineItems: []*stripeapi.CheckoutSessionLineItemParams{
			{
				Price:    stripeapi.String(req.PriceID),
				Quantity: stripeapi.Int64(req.Quantity),
			},
		},
	}
	if req.SetupFutureUsage != "" {
		params.PaymentIntentData = &stripeapi.CheckoutSessionPaymentIntentDataParams{
			SetupFutureUsage: stripeapi.String(req.SetupFutureUsage),
		}
	}
	params.Context = ctx

	out, err := g.breaker.Execute(func() (any, error) {
		return g.api.CheckoutSessions.New(params)
	})
	if err != nil {
		return nil, g.wrapError("create checkout session", err)
	}
	return toSession(out.(*stripeapi.CheckoutSession))
}

func (g *Gateway) GetSession(ctx context.Context, sessionID string) (*checkoutdomain.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripeapi.CheckoutSessionParams{}
	params.Context = ctx

	out, err := g.breaker.Execute(func() (any, error) {
		return g.api.CheckoutSessions.Get(sessionID, params)
	})
	if err != nil {
		return nil, g.wrapError("get checkout session", err)
	}
	return toSession(out.(*stripeapi.CheckoutSession))
}

func (g *Gateway) GetPrice(ctx context.Context, priceID string) (*checkoutdomain.Price, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripeapi.PriceParams{}
	params.Context = ctx

	out, err := g.breaker.Execute(func() (any, error) {
		return g.api.Prices.Get(priceID, params)
	})
	if err != nil {
		return nil, g.wrapError("get price", err)
	}
	price := out.(*stripeapi.Price)
	return &checkoutdomain.Price{
		ID:         price.ID,
		UnitAmount: price.UnitAmount,
		Currency:   string(price.Currency),
	}, nil
}

func toSession(session *stripeapi.CheckoutSession) (*checkoutdomain.Session, error) {
	if session == nil {
		return nil, fmt.Errorf("%w: empty checkout session", checkoutdomain.ErrUpstream)
	}
	var raw json.RawMessage
	if session.LastResponse != nil && len(session.LastResponse.RawJSON) > 0 {
		raw = json.RawMessage(session.LastResponse.RawJSON)
	} else {
		encoded, err := json.Marshal(session)
		if err != nil {
			return nil, fmt.Errorf("%w: encode checkout session: %v", checkoutdomain.ErrUpstream, err)
		}
		raw = encoded
	}
	return &checkoutdomain.Session{ID: session.ID, Raw: raw}, nil
}

func (g *Gateway) wrapError(op string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w", op, checkoutdomain.ErrUpstreamOpen)
	}

	var stripeErr *stripeapi.Error
	if errors.As(err, &stripeErr) {
		g.log.Warn("stripe request failed",
			zap.String("op", op),
			zap.Int("status_code", stripeErr.HTTPStatusCode),
			zap.String("code", string(stripeErr.Code)),
			zap.String("request_id", stripeErr.RequestID),
		)
		return fmt.Errorf("%s: %w: %s", op, checkoutdomain.ErrUpstream, stripeErr.Msg)
	}
	return fmt.Errorf("%s: %w: %v", op, checkoutdomain.ErrUpstream, err)
}

func isClientError(err error) bool {
	var stripeErr *stripeapi.Error
	if !errors.As(err, &stripeErr) {
		return false
	}
	status := stripeErr.HTTPStatusCode
	return status >= 400 && status < 500 && status != http.StatusTooManyRequests
}
