package main

import (
	"github.com/smallbiznis/checkout/internal/cache"
	"github.com/smallbiznis/checkout/internal/checkout"
	"github.com/smallbiznis/checkout/internal/clock"
	"github.com/smallbiznis/checkout/internal/config"
	"github.com/smallbiznis/checkout/internal/observability"
	"github.com/smallbiznis/checkout/internal/payment"
	"github.com/smallbiznis/checkout/internal/ratelimit"
	"github.com/smallbiznis/checkout/internal/server"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),

		// Core Infrastructure
		config.Module,
		observability.Module,
		clock.Module,
		cache.Module,

		// Functional Domains
		payment.Module,
		checkout.Module,
		ratelimit.Module,

		server.Module,
	)
	app.Run()
}
