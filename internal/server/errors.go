package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	checkoutdomain "github.com/smallbiznis/checkout/internal/checkout/domain"
	paymentdomain "github.com/smallbiznis/checkout/internal/payment/domain"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// validationRules turns domain sentinels into field level 400 responses.
var validationRules = []struct {
	err     error
	field   string
	message string
}{
	{ErrInvalidRequest, "request", "invalid request"},
	{checkoutdomain.ErrInvalidQuantity, "quantity", "quantity must be a positive integer"},
	{checkoutdomain.ErrInvalidSessionID, "sessionId", "sessionId is required"},
}

type statusRule struct {
	errs    []error
	status  int
	typ     string
	message string
}

// statusRules are matched in order; the first rule with a matching error wins.
var statusRules = []statusRule{
	{[]error{ErrNotFound}, http.StatusNotFound, "not_found", "not found"},
	{[]error{ErrRateLimited}, http.StatusTooManyRequests, "rate_limited", "too many requests"},
	{[]error{checkoutdomain.ErrUpstreamOpen, ErrServiceUnavailable}, http.StatusServiceUnavailable, "service_unavailable", "service unavailable"},
	{[]error{checkoutdomain.ErrUpstream}, http.StatusBadGateway, "upstream_error", "payment processor request failed"},
}

var internalRule = statusRule{status: http.StatusInternalServerError, typ: "internal_error", message: "internal server error"}

// ErrorHandlingMiddleware renders the last handler error as a JSON envelope
// unless the handler already wrote a response.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}
		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return &ValidationErrors{Errors: []ValidationError{
		{Field: "request", Code: ErrInvalidRequest.Error(), Message: "invalid request"},
	}}
}

func mapError(err error) (int, errorPayload) {
	if fields, ok := validationFields(err); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  fields,
		}
	}
	rule := matchStatus(err)
	return rule.status, errorPayload{Type: rule.typ, Message: rule.message}
}

func validationFields(err error) ([]ValidationError, bool) {
	if err == nil {
		return nil, false
	}
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr.Errors, true
	}
	for _, rule := range validationRules {
		if errors.Is(err, rule.err) {
			return []ValidationError{{Field: rule.field, Code: rule.err.Error(), Message: rule.message}}, true
		}
	}
	return nil, false
}

func matchStatus(err error) statusRule {
	if err == nil {
		return internalRule
	}
	for _, rule := range statusRules {
		for _, target := range rule.errs {
			if errors.Is(err, target) {
				return rule
			}
		}
	}
	return internalRule
}

// classifyErrorForLog feeds error_type/error_code into the request log.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	if fields, ok := validationFields(err); ok {
		code := ""
		if len(fields) > 0 {
			code = fields[0].Code
		}
		return "validation_error", code
	}
	if code := paymentdomain.ReasonCode(err); code != "" {
		return "webhook_rejected", code
	}
	rule := matchStatus(err)
	if errors.Is(err, checkoutdomain.ErrUpstreamOpen) {
		return rule.typ, checkoutdomain.ErrUpstreamOpen.Error()
	}
	return rule.typ, rule.typ
}
