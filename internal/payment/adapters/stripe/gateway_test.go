package stripe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	checkoutdomain "github.com/smallbiznis/checkout/internal/checkout/domain"
	"github.com/smallbiznis/checkout/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestGateway(t *testing.T, handler http.Handler) checkoutdomain.Gateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	gateway, err := NewGateway(config.Config{
		Stripe: config.StripeConfig{
			SecretKey:      "sk_test_123",
			APIURL:         srv.URL,
			RequestTimeout: 2 * time.Second,
		},
	}, zap.NewNop())
	require.NoError(t, err)
	return gateway
}

func writeStripeError(w http.ResponseWriter, status int, errType, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"type":    errType,
			"code":    code,
			"message": message,
		},
	})
}

func TestGatewayCreateSessionSendsForm(t *testing.T) {
	var form url.Values
	gateway := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseForm())
		form = r.PostForm

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_123","object":"checkout.session","mode":"payment","url":"https://checkout.stripe.com/c/pay/cs_test_123"}`))
	}))

	session, err := gateway.CreateSession(context.Background(), checkoutdomain.SessionRequest{
		PriceID:            "price_123",
		Quantity:           3,
		PaymentMethodTypes: []string{"bacs_debit"},
		SetupFutureUsage:   checkoutdomain.SetupFutureUsageOffSession,
		Mode:               checkoutdomain.ModePayment,
		SuccessURL:         "https://shop.test/success.html?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:          "https://shop.test/canceled.html",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_123", session.ID)
	assert.JSONEq(t, `{"id":"cs_test_123","object":"checkout.session","mode":"payment","url":"https://checkout.stripe.com/c/pay/cs_test_123"}`, string(session.Raw))

	require.NotNil(t, form)
	assert.Equal(t, "price_123", form.Get("line_items[0][price]"))
	assert.Equal(t, "3", form.Get("line_items[0][quantity]"))
	assert.Equal(t, "bacs_debit", form.Get("payment_method_types[0]"))
	assert.Equal(t, "off_session", form.Get("payment_intent_data[setup_future_usage]"))
	assert.Equal(t, "payment", form.Get("mode"))
	assert.Equal(t, "https://shop.test/success.html?session_id={CHECKOUT_SESSION_ID}", form.Get("success_url"))
	assert.Equal(t, "https://shop.test/canceled.html", form.Get("cancel_url"))
}

func TestGatewayGetSessionPassesThroughObject(t *testing.T) {
	body := `{"id":"cs_test_9","object":"checkout.session","payment_status":"paid","amount_total":2000,"currency":"gbp"}`
	gateway := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/checkout/sessions/cs_test_9", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))

	session, err := gateway.GetSession(context.Background(), "cs_test_9")
	require.NoError(t, err)
	assert.Equal(t, "cs_test_9", session.ID)
	assert.JSONEq(t, body, string(session.Raw))
}

func TestGatewayGetSessionNotFoundIsUpstreamError(t *testing.T) {
	gateway := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeStripeError(w, http.StatusNotFound, "invalid_request_error", "resource_missing", "No such checkout.session: 'cs_missing'")
	}))

	_, err := gateway.GetSession(context.Background(), "cs_missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, checkoutdomain.ErrUpstream)
	assert.NotErrorIs(t, err, checkoutdomain.ErrUpstreamOpen)
}

func TestGatewayGetPrice(t *testing.T) {
	gateway := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/prices/price_123", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"price_123","object":"price","unit_amount":2000,"currency":"gbp"}`))
	}))

	price, err := gateway.GetPrice(context.Background(), "price_123")
	require.NoError(t, err)
	assert.Equal(t, &checkoutdomain.Price{ID: "price_123", UnitAmount: 2000, Currency: "gbp"}, price)
}

func TestGatewayDoesNotRetryAndOpensBreaker(t *testing.T) {
	var hits atomic.Int32
	gateway := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeStripeError(w, http.StatusInternalServerError, "api_error", "", "processor unavailable")
	}))

	for i := 0; i < breakerFailureThreshold; i++ {
		_, err := gateway.GetPrice(context.Background(), "price_123")
		require.ErrorIs(t, err, checkoutdomain.ErrUpstream)
	}
	assert.Equal(t, int32(breakerFailureThreshold), hits.Load(), "each failed call must reach the processor exactly once")

	_, err := gateway.GetPrice(context.Background(), "price_123")
	require.ErrorIs(t, err, checkoutdomain.ErrUpstreamOpen)
	assert.Equal(t, int32(breakerFailureThreshold), hits.Load())
}

func TestGatewayClientErrorsDoNotOpenBreaker(t *testing.T) {
	gateway := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeStripeError(w, http.StatusBadRequest, "invalid_request_error", "parameter_invalid_integer", "Invalid integer")
	}))

	for i := 0; i < breakerFailureThreshold+2; i++ {
		_, err := gateway.GetPrice(context.Background(), "price_123")
		require.ErrorIs(t, err, checkoutdomain.ErrUpstream)
		require.NotErrorIs(t, err, checkoutdomain.ErrUpstreamOpen)
	}
}

func TestNewGatewayRequiresSecretKey(t *testing.T) {
	_, err := NewGateway(config.Config{}, zap.NewNop())
	assert.ErrorIs(t, err, config.ErrMissingSecretKey)
}
