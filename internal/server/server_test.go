package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	checkoutdomain "github.com/smallbiznis/checkout/internal/checkout/domain"
	"github.com/smallbiznis/checkout/internal/clock"
	"github.com/smallbiznis/checkout/internal/config"
	"github.com/smallbiznis/checkout/internal/observability"
	obsmetrics "github.com/smallbiznis/checkout/internal/observability/metrics"
	"github.com/smallbiznis/checkout/internal/payment/adapters/stripe"
	"github.com/smallbiznis/checkout/internal/payment/webhook"
	"github.com/smallbiznis/checkout/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testWebhookSecret  = "whsec_test"
	testPublishableKey = "pk_test_123"
	testSecretKey      = "sk_test_secret"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type fakeCheckoutService struct {
	createCalls  int
	lastRequest  checkoutdomain.CreateCheckoutSessionRequest
	createErr    error
	session      *checkoutdomain.Session
	getErr       error
	publicConfig *checkoutdomain.PublicConfig
}

func (f *fakeCheckoutService) CreateCheckoutSession(ctx context.Context, req checkoutdomain.CreateCheckoutSessionRequest) (*checkoutdomain.CreateCheckoutSessionResponse, error) {
	f.createCalls++
	f.lastRequest = req
	if f.createErr != nil {
		return nil, f.createErr
	}
	if req.Quantity != nil && *req.Quantity < 1 {
		return nil, checkoutdomain.ErrInvalidQuantity
	}
	return &checkoutdomain.CreateCheckoutSessionResponse{SessionID: "cs_test_123"}, nil
}

func (f *fakeCheckoutService) GetCheckoutSession(ctx context.Context, sessionID string) (*checkoutdomain.Session, error) {
	if sessionID == "" {
		return nil, checkoutdomain.ErrInvalidSessionID
	}
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.session, nil
}

func (f *fakeCheckoutService) GetPublicConfig(ctx context.Context) (*checkoutdomain.PublicConfig, error) {
	return f.publicConfig, nil
}

type testServerOptions struct {
	staticDir string
	limiter   *ratelimit.CheckoutLimiter
}

func newTestServer(t *testing.T, checkoutSvc checkoutdomain.Service, opts testServerOptions) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Config{
		StaticDir: opts.staticDir,
		Stripe: config.StripeConfig{
			SecretKey:      testSecretKey,
			PublishableKey: testPublishableKey,
			WebhookSecret:  testWebhookSecret,
		},
	}

	verifier, err := stripe.NewVerifier(cfg, clock.NewFakeClock(testNow))
	require.NoError(t, err)
	webhookSvc := webhook.NewService(webhook.Params{
		Log:        zap.NewNop(),
		Verifier:   verifier,
		Dispatcher: webhook.NewDispatcher(zap.NewNop(), nil),
	})

	httpMetrics, err := obsmetrics.NewHTTPMetricsWithRegisterer(prometheus.NewRegistry())
	require.NoError(t, err)

	return NewServer(ServerParams{
		Gin:             NewEngine(observability.Config{}, httpMetrics),
		Cfg:             cfg,
		CheckoutSvc:     checkoutSvc,
		WebhookSvc:      webhookSvc,
		CheckoutLimiter: opts.limiter,
	})
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	srv.Engine().ServeHTTP(resp, req)
	return resp
}

func decodeErrorType(t *testing.T, body []byte) string {
	t.Helper()
	var payload errorResponse
	require.NoError(t, json.Unmarshal(body, &payload))
	return payload.Error.Type
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &fakeCheckoutService{}, testServerOptions{})
	resp := serve(srv, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"status":"ok"}`, resp.Body.String())
}

func TestGetConfigOmitsSecrets(t *testing.T) {
	svc := &fakeCheckoutService{publicConfig: &checkoutdomain.PublicConfig{
		PublishableKey: testPublishableKey,
		UnitAmount:     2000,
		Currency:       "gbp",
	}}
	srv := newTestServer(t, svc, testServerOptions{})

	resp := serve(srv, httptest.NewRequest(http.MethodGet, "/config", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"publishableKey":"pk_test_123","unitAmount":2000,"currency":"gbp"}`, resp.Body.String())
	assert.NotContains(t, resp.Body.String(), testSecretKey)
	assert.NotContains(t, resp.Body.String(), testWebhookSecret)
}

func TestCreateCheckoutSession(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		wantStatus   int
		wantQuantity *int64
		wantType     string
	}{
		{name: "empty body", body: "", wantStatus: http.StatusOK},
		{name: "explicit quantity", body: `{"quantity":3}`, wantStatus: http.StatusOK, wantQuantity: int64Ptr(3)},
		{name: "zero quantity", body: `{"quantity":0}`, wantStatus: http.StatusBadRequest, wantQuantity: int64Ptr(0), wantType: "validation_error"},
		{name: "malformed json", body: `{"quantity":`, wantStatus: http.StatusBadRequest, wantType: "validation_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeCheckoutService{}
			srv := newTestServer(t, svc, testServerOptions{})

			req := httptest.NewRequest(http.MethodPost, "/create-checkout-session", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			resp := serve(srv, req)

			require.Equal(t, tt.wantStatus, resp.Code, resp.Body.String())
			if tt.wantStatus == http.StatusOK {
				assert.JSONEq(t, `{"sessionId":"cs_test_123"}`, resp.Body.String())
				assert.Equal(t, tt.wantQuantity, svc.lastRequest.Quantity)
				return
			}
			assert.Equal(t, tt.wantType, decodeErrorType(t, resp.Body.Bytes()))
		})
	}
}

func TestCreateCheckoutSessionUpstreamErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"processor failure", fmt.Errorf("create checkout session: %w: boom", checkoutdomain.ErrUpstream), http.StatusBadGateway, "upstream_error"},
		{"breaker open", fmt.Errorf("create checkout session: %w", checkoutdomain.ErrUpstreamOpen), http.StatusServiceUnavailable, "service_unavailable"},
		{"unexpected", fmt.Errorf("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &fakeCheckoutService{createErr: tt.err}, testServerOptions{})
			resp := serve(srv, httptest.NewRequest(http.MethodPost, "/create-checkout-session", nil))
			assert.Equal(t, tt.wantStatus, resp.Code)
			assert.Equal(t, tt.wantType, decodeErrorType(t, resp.Body.Bytes()))
		})
	}
}

func TestCreateCheckoutSessionRateLimited(t *testing.T) {
	limiter, err := ratelimit.NewCheckoutLimiter(nil, config.Config{RateLimit: config.RateLimitConfig{
		Enabled:       true,
		CheckoutRate:  1,
		CheckoutBurst: 1,
	}}, clock.NewFakeClock(testNow), nil)
	require.NoError(t, err)

	svc := &fakeCheckoutService{}
	srv := newTestServer(t, svc, testServerOptions{limiter: limiter})

	first := serve(srv, httptest.NewRequest(http.MethodPost, "/create-checkout-session", nil))
	require.Equal(t, http.StatusOK, first.Code)

	second := serve(srv, httptest.NewRequest(http.MethodPost, "/create-checkout-session", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "rate_limited", decodeErrorType(t, second.Body.Bytes()))
	assert.Equal(t, "1", second.Header().Get("Retry-After"))
	assert.Equal(t, 1, svc.createCalls)
}

func TestGetCheckoutSession(t *testing.T) {
	raw := `{"id":"cs_test_123","object":"checkout.session","payment_status":"paid"}`
	svc := &fakeCheckoutService{session: &checkoutdomain.Session{ID: "cs_test_123", Raw: json.RawMessage(raw)}}
	srv := newTestServer(t, svc, testServerOptions{})

	resp := serve(srv, httptest.NewRequest(http.MethodGet, "/checkout-session?sessionId=cs_test_123", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, raw, resp.Body.String())

	missing := serve(srv, httptest.NewRequest(http.MethodGet, "/checkout-session", nil))
	assert.Equal(t, http.StatusBadRequest, missing.Code)
	assert.Equal(t, "validation_error", decodeErrorType(t, missing.Body.Bytes()))
}

func TestGetCheckoutSessionUnknownIDIsUpstreamError(t *testing.T) {
	svc := &fakeCheckoutService{getErr: fmt.Errorf("get checkout session: %w: No such checkout.session", checkoutdomain.ErrUpstream)}
	srv := newTestServer(t, svc, testServerOptions{})

	resp := serve(srv, httptest.NewRequest(http.MethodGet, "/checkout-session?sessionId=cs_missing", nil))
	assert.Equal(t, http.StatusBadGateway, resp.Code)
}

func webhookRequest(payload []byte, header string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if header != "" {
		req.Header.Set(stripe.SignatureHeader, header)
	}
	return req
}

func TestWebhookResponses(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"id":"cs_test_1","payment_status":"paid"}}}`)
	unknown := []byte(`{"id":"evt_2","type":"customer.created","data":{"object":{}}}`)

	tests := []struct {
		name       string
		payload    []byte
		header     string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "verified",
			payload:    payload,
			header:     stripe.SignPayload(testWebhookSecret, payload, testNow),
			wantStatus: http.StatusOK,
			wantBody:   `{}`,
		},
		{
			name:       "unknown event type",
			payload:    unknown,
			header:     stripe.SignPayload(testWebhookSecret, unknown, testNow),
			wantStatus: http.StatusOK,
			wantBody:   `{}`,
		},
		{
			name:       "missing signature",
			payload:    payload,
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":"missing Stripe-Signature header"}`,
		},
		{
			name:       "malformed signature header",
			payload:    payload,
			header:     "v1=abc",
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":"malformed Stripe-Signature header"}`,
		},
		{
			name:       "wrong secret",
			payload:    payload,
			header:     stripe.SignPayload("whsec_other", payload, testNow),
			wantStatus: http.StatusForbidden,
			wantBody:   `{"error":"no signatures found matching the expected signature for payload"}`,
		},
		{
			name:       "stale timestamp",
			payload:    payload,
			header:     stripe.SignPayload(testWebhookSecret, payload, testNow.Add(-10*time.Minute)),
			wantStatus: http.StatusForbidden,
			wantBody:   `{"error":"timestamp outside the tolerance zone"}`,
		},
		{
			name:       "signed garbage",
			payload:    []byte(`not json`),
			header:     stripe.SignPayload(testWebhookSecret, []byte(`not json`), testNow),
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":"invalid webhook payload"}`,
		},
	}

	srv := newTestServer(t, &fakeCheckoutService{}, testServerOptions{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := serve(srv, webhookRequest(tt.payload, tt.header))
			assert.Equal(t, tt.wantStatus, resp.Code)
			assert.JSONEq(t, tt.wantBody, resp.Body.String())
		})
	}
}

func TestStaticFallback(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>checkout</h1>"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "success.html"), []byte("<h1>thanks</h1>"), 0o600))

	srv := newTestServer(t, &fakeCheckoutService{}, testServerOptions{staticDir: dir})

	resp := serve(srv, httptest.NewRequest(http.MethodGet, "/success.html", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "thanks")

	resp = serve(srv, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "checkout")

	resp = serve(srv, httptest.NewRequest(http.MethodGet, "/missing.html", nil))
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = serve(srv, httptest.NewRequest(http.MethodGet, "/../../etc/passwd", nil))
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestClassifyErrorForLog(t *testing.T) {
	errType, code := classifyErrorForLog(checkoutdomain.ErrInvalidQuantity)
	assert.Equal(t, "validation_error", errType)
	assert.Equal(t, "invalid_quantity", code)

	errType, code = classifyErrorForLog(fmt.Errorf("get price: %w", checkoutdomain.ErrUpstream))
	assert.Equal(t, "upstream_error", errType)
	assert.Equal(t, "upstream_error", code)

	errType, code = classifyErrorForLog(ErrRateLimited)
	assert.Equal(t, "rate_limited", errType)
	assert.Equal(t, "rate_limited", code)
}

func int64Ptr(v int64) *int64 {
	return &v
}
