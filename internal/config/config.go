package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	HTTPAddr  string
	StaticDir string

	Stripe        StripeConfig
	RateLimit     RateLimitConfig
	Observability ObservabilityConfig
}

// StripeConfig carries processor credentials and checkout session settings.
// Secrets are excluded from any JSON encoding of the config.
type StripeConfig struct {
	SecretKey         string        `json:"-"`
	PublishableKey    string        `json:"publishable_key"`
	WebhookSecret     string        `json:"-"`
	PriceID           string        `json:"price_id"`
	Domain            string        `json:"domain"`
	PaymentMethodType string        `json:"payment_method_type"`
	APIURL            string        `json:"api_url"`
	RequestTimeout    time.Duration `json:"request_timeout"`
	WebhookTolerance  time.Duration `json:"webhook_tolerance"`
	PriceCacheTTL     time.Duration `json:"price_cache_ttl"`
}

type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string `json:"-"`
	RedisDB       int

	CheckoutRate  float64
	CheckoutBurst int
}

// ObservabilityConfig drives logging, tracing and OTLP metric export.
type ObservabilityConfig struct {
	LogLevel      string
	LogFormat     string
	OtelEnabled   bool
	OtelEndpoint  string
	OtelProtocol  string
	SamplingRatio float64
}

var (
	ErrMissingSecretKey      = errors.New("missing_stripe_secret_key")
	ErrMissingPublishableKey = errors.New("missing_stripe_publishable_key")
	ErrMissingWebhookSecret  = errors.New("missing_stripe_webhook_secret")
	ErrMissingPriceID        = errors.New("missing_price_id")
	ErrMissingDomain         = errors.New("missing_domain")
)

// env names are kept compatible with the Stripe sample .env files. When a key
// lists several names the first one set wins.
var envBindings = map[string][]string{
	"app.name":                   {"APP_SERVICE"},
	"app.version":                {"APP_VERSION", "SERVICE_VERSION"},
	"app.environment":            {"ENVIRONMENT", "DEPLOYMENT_ENV"},
	"http.addr":                  {"HTTP_ADDR"},
	"http.static_dir":            {"STATIC_DIR"},
	"stripe.secret_key":          {"STRIPE_SECRET_KEY"},
	"stripe.publishable_key":     {"STRIPE_PUBLISHABLE_KEY"},
	"stripe.webhook_secret":      {"STRIPE_WEBHOOK_SECRET"},
	"stripe.price_id":            {"PRICE"},
	"stripe.domain":              {"DOMAIN"},
	"stripe.payment_method_type": {"STRIPE_PAYMENT_METHOD_TYPE"},
	"stripe.api_url":             {"STRIPE_API_URL"},
	"stripe.request_timeout":     {"STRIPE_REQUEST_TIMEOUT"},
	"stripe.webhook_tolerance":   {"STRIPE_WEBHOOK_TOLERANCE"},
	"stripe.price_cache_ttl":     {"STRIPE_PRICE_CACHE_TTL"},
	"rate_limit.enabled":         {"RATE_LIMIT_ENABLED"},
	"rate_limit.redis_addr":      {"RATE_LIMIT_REDIS_ADDR"},
	"rate_limit.redis_password":  {"RATE_LIMIT_REDIS_PASSWORD"},
	"rate_limit.redis_db":        {"RATE_LIMIT_REDIS_DB"},
	"rate_limit.checkout_rate":   {"RATE_LIMIT_CHECKOUT_RATE"},
	"rate_limit.checkout_burst":  {"RATE_LIMIT_CHECKOUT_BURST"},
	"log.level":                  {"LOG_LEVEL"},
	"log.format":                 {"LOG_FORMAT"},
	"otel.enabled":               {"OTEL_ENABLED"},
	"otel.endpoint":              {"OTEL_EXPORTER_OTLP_ENDPOINT", "OTLP_ENDPOINT"},
	"otel.protocol":              {"OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "OTEL_EXPORTER_OTLP_PROTOCOL"},
	"otel.sampling_ratio":        {"OTEL_SAMPLING_RATIO"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "checkout")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("http.addr", "localhost:4242")
	v.SetDefault("http.static_dir", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("otel.enabled", false)
	v.SetDefault("otel.endpoint", "localhost:4317")
	v.SetDefault("otel.protocol", "grpc")
	v.SetDefault("otel.sampling_ratio", 0.1)
	v.SetDefault("stripe.payment_method_type", "bacs_debit")
	v.SetDefault("stripe.api_url", "")
	v.SetDefault("stripe.request_timeout", 10*time.Second)
	v.SetDefault("stripe.webhook_tolerance", 5*time.Minute)
	v.SetDefault("stripe.price_cache_ttl", time.Minute)
	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.redis_db", 0)
	v.SetDefault("rate_limit.checkout_rate", 1.0)
	v.SetDefault("rate_limit.checkout_burst", 5)
}

// Load loads configuration from the .env file, an optional checkout.yml and
// environment variables, in increasing order of precedence.
func Load() (Config, error) {
	_ = godotenv.Load()
	return load(viper.New())
}

func load(v *viper.Viper) (Config, error) {
	setDefaults(v)

	v.SetConfigName("checkout")
	v.SetConfigType("yml")
	if path := strings.TrimSpace(getenv("CHECKOUT_CONFIG_PATH", "")); path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath("/etc/checkout")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, err
		}
	}

	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return Config{}, err
		}
	}

	cfg := Config{
		AppName:     strings.TrimSpace(v.GetString("app.name")),
		AppVersion:  strings.TrimSpace(v.GetString("app.version")),
		Environment: strings.TrimSpace(v.GetString("app.environment")),
		HTTPAddr:    strings.TrimSpace(v.GetString("http.addr")),
		StaticDir:   strings.TrimSpace(v.GetString("http.static_dir")),
		Stripe: StripeConfig{
			SecretKey:         strings.TrimSpace(v.GetString("stripe.secret_key")),
			PublishableKey:    strings.TrimSpace(v.GetString("stripe.publishable_key")),
			WebhookSecret:     strings.TrimSpace(v.GetString("stripe.webhook_secret")),
			PriceID:           strings.TrimSpace(v.GetString("stripe.price_id")),
			Domain:            strings.TrimRight(strings.TrimSpace(v.GetString("stripe.domain")), "/"),
			PaymentMethodType: strings.TrimSpace(v.GetString("stripe.payment_method_type")),
			APIURL:            strings.TrimRight(strings.TrimSpace(v.GetString("stripe.api_url")), "/"),
			RequestTimeout:    v.GetDuration("stripe.request_timeout"),
			WebhookTolerance:  v.GetDuration("stripe.webhook_tolerance"),
			PriceCacheTTL:     v.GetDuration("stripe.price_cache_ttl"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       v.GetBool("rate_limit.enabled"),
			RedisAddr:     strings.TrimSpace(v.GetString("rate_limit.redis_addr")),
			RedisPassword: strings.TrimSpace(v.GetString("rate_limit.redis_password")),
			RedisDB:       v.GetInt("rate_limit.redis_db"),
			CheckoutRate:  v.GetFloat64("rate_limit.checkout_rate"),
			CheckoutBurst: v.GetInt("rate_limit.checkout_burst"),
		},
		Observability: ObservabilityConfig{
			LogLevel:      strings.ToLower(strings.TrimSpace(v.GetString("log.level"))),
			LogFormat:     strings.ToLower(strings.TrimSpace(v.GetString("log.format"))),
			OtelEnabled:   v.GetBool("otel.enabled"),
			OtelEndpoint:  strings.TrimSpace(v.GetString("otel.endpoint")),
			OtelProtocol:  strings.ToLower(strings.TrimSpace(v.GetString("otel.protocol"))),
			SamplingRatio: v.GetFloat64("otel.sampling_ratio"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first missing required setting.
func (c Config) Validate() error {
	switch {
	case c.Stripe.SecretKey == "":
		return ErrMissingSecretKey
	case c.Stripe.PublishableKey == "":
		return ErrMissingPublishableKey
	case c.Stripe.WebhookSecret == "":
		return ErrMissingWebhookSecret
	case c.Stripe.PriceID == "":
		return ErrMissingPriceID
	case c.Stripe.Domain == "":
		return ErrMissingDomain
	}
	return nil
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}
