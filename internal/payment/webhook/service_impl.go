package webhook

import (
	"context"
	"net/http"
	"time"

	"github.com/smallbiznis/checkout/internal/observability/logger"
	"github.com/smallbiznis/checkout/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/checkout/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Verifier   paymentdomain.Verifier
	Dispatcher *Dispatcher
	Metrics    *metrics.Metrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	verifier   paymentdomain.Verifier
	dispatcher *Dispatcher
	metrics    *metrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		log:        p.Log.Named("payment.webhook"),
		verifier:   p.Verifier,
		dispatcher: p.Dispatcher,
		metrics:    p.Metrics,
	}
}

// Receive verifies one delivery and dispatches it when authentic. The result
// tells the caller how to answer the sender; handlers never affect it.
func (s *Service) Receive(ctx context.Context, payload []byte, headers http.Header) paymentdomain.Result {
	if s.verifier == nil {
		return paymentdomain.Rejected(paymentdomain.ErrInvalidConfig)
	}

	provider := s.verifier.Provider()
	start := time.Now()
	result := s.verifier.Verify(ctx, payload, headers)
	elapsed := time.Since(start)
	if !result.IsVerified() {
		s.metrics.RecordWebhookVerification(ctx, provider, "rejected", elapsed)
		reason := result.Err()
		logger.WithContext(ctx, s.log).Warn("webhook rejected",
			zap.String("provider", provider),
			zap.String("reason", reasonCode(reason)),
		)
		s.metrics.RecordWebhookRejected(ctx, provider, reasonCode(reason))
		return result
	}

	s.metrics.RecordWebhookVerification(ctx, provider, "verified", elapsed)
	if s.dispatcher != nil {
		s.dispatcher.Dispatch(ctx, result.Event)
	}
	return result
}

func reasonCode(err error) string {
	if code := paymentdomain.ReasonCode(err); code != "" {
		return code
	}
	return "unknown"
}
