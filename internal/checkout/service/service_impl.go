package service

import (
	"context"
	"strings"

	"github.com/smallbiznis/checkout/internal/cache"
	checkoutdomain "github.com/smallbiznis/checkout/internal/checkout/domain"
	"github.com/smallbiznis/checkout/internal/config"
	"github.com/smallbiznis/checkout/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Cfg     config.Config
	Log     *zap.Logger
	Gateway checkoutdomain.Gateway
	Metrics *metrics.Metrics `optional:"true"`
	Prices  cache.PriceCache `optional:"true"`
}

type Service struct {
	cfg     config.StripeConfig
	log     *zap.Logger
	gateway checkoutdomain.Gateway
	metrics *metrics.Metrics
	prices  cache.PriceCache
}

func New(p Params) checkoutdomain.Service {
	return &Service{
		cfg:     p.Cfg.Stripe,
		log:     p.Log.Named("checkout.service"),
		gateway: p.Gateway,
		metrics: p.Metrics,
		prices:  p.Prices,
	}
}

func (s *Service) CreateCheckoutSession(ctx context.Context, req checkoutdomain.CreateCheckoutSessionRequest) (*checkoutdomain.CreateCheckoutSessionResponse, error) {
	quantity := checkoutdomain.DefaultQuantity
	if req.Quantity != nil {
		quantity = *req.Quantity
	}
	if quantity < 1 {
		return nil, checkoutdomain.ErrInvalidQuantity
	}

	session, err := s.gateway.CreateSession(ctx, s.sessionRequest(quantity))
	if err != nil {
		s.log.Error("create checkout session failed",
			zap.Int64("quantity", quantity),
			zap.Error(err),
		)
		s.metrics.RecordCheckoutSession(ctx, "error")
		return nil, err
	}

	s.log.Info("checkout session created",
		zap.String("session_id", session.ID),
		zap.Int64("quantity", quantity),
	)
	s.metrics.RecordCheckoutSession(ctx, "created")
	return &checkoutdomain.CreateCheckoutSessionResponse{SessionID: session.ID}, nil
}

func (s *Service) GetCheckoutSession(ctx context.Context, sessionID string) (*checkoutdomain.Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, checkoutdomain.ErrInvalidSessionID
	}

	session, err := s.gateway.GetSession(ctx, sessionID)
	if err != nil {
		s.log.Error("retrieve checkout session failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return nil, err
	}
	return session, nil
}

func (s *Service) GetPublicConfig(ctx context.Context) (*checkoutdomain.PublicConfig, error) {
	price, err := s.lookupPrice(ctx, s.cfg.PriceID)
	if err != nil {
		s.log.Error("retrieve price failed",
			zap.String("price_id", s.cfg.PriceID),
			zap.Error(err),
		)
		return nil, err
	}

	return &checkoutdomain.PublicConfig{
		PublishableKey: s.cfg.PublishableKey,
		UnitAmount:     price.UnitAmount,
		Currency:       price.Currency,
	}, nil
}

func (s *Service) lookupPrice(ctx context.Context, priceID string) (*checkoutdomain.Price, error) {
	if s.prices != nil {
		if price, ok := s.prices.GetPrice(priceID); ok {
			return price, nil
		}
	}
	price, err := s.gateway.GetPrice(ctx, priceID)
	if err != nil {
		return nil, err
	}
	if s.prices != nil {
		s.prices.SetPrice(priceID, price)
	}
	return price, nil
}

func (s *Service) sessionRequest(quantity int64) checkoutdomain.SessionRequest {
	return checkoutdomain.SessionRequest{
		PriceID:            s.cfg.PriceID,
		Quantity:           quantity,
		PaymentMethodTypes: []string{s.cfg.PaymentMethodType},
		SetupFutureUsage:   checkoutdomain.SetupFutureUsageOffSession,
		Mode:               checkoutdomain.ModePayment,
		SuccessURL:         s.cfg.Domain + "/success.html?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:          s.cfg.Domain + "/canceled.html",
	}
}
