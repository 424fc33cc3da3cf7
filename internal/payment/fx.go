package payment

import (
	"github.com/smallbiznis/checkout/internal/payment/adapters/stripe"
	"github.com/smallbiznis/checkout/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.webhook",
	fx.Provide(stripe.NewVerifier),
	fx.Provide(stripe.NewGateway),
	fx.Provide(webhook.NewDispatcher),
	fx.Provide(webhook.NewService),
)
