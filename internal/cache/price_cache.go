package cache

import (
	"strings"
	"time"

	checkoutdomain "github.com/smallbiznis/checkout/internal/checkout/domain"
	"github.com/smallbiznis/checkout/internal/clock"
	"github.com/smallbiznis/checkout/internal/config"
)

// PriceCache keeps processor price lookups for the public config endpoint.
type PriceCache interface {
	GetPrice(priceID string) (*checkoutdomain.Price, bool)
	SetPrice(priceID string, price *checkoutdomain.Price)
}

type priceCache struct {
	prices Cache[string, checkoutdomain.Price]
	ttl    time.Duration
}

// NewPriceCache returns a cache honoring STRIPE_PRICE_CACHE_TTL. A zero TTL
// disables caching.
func NewPriceCache(cfg config.Config, clk clock.Clock) PriceCache {
	return &priceCache{
		prices: NewTTLCacheWithClock[string, checkoutdomain.Price](clk),
		ttl:    cfg.Stripe.PriceCacheTTL,
	}
}

func (c *priceCache) GetPrice(priceID string) (*checkoutdomain.Price, bool) {
	price, ok := c.prices.Get(cacheKey(priceID))
	if !ok {
		return nil, false
	}
	return &price, true
}

func (c *priceCache) SetPrice(priceID string, price *checkoutdomain.Price) {
	if price == nil {
		return
	}
	c.prices.Set(cacheKey(priceID), *price, c.ttl)
}

func cacheKey(parts ...string) string {
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		values = append(values, trimmed)
	}
	return strings.Join(values, "|")
}
