package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/checkout/internal/observability/logger"
	paymentdomain "github.com/smallbiznis/checkout/internal/payment/domain"
)

const maxWebhookBodyBytes = 1 << 20

// webhookErrorResponse is the flat body the processor gets back on rejection.
type webhookErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		_ = c.Error(paymentdomain.ErrInvalidPayload)
		c.AbortWithStatusJSON(http.StatusBadRequest, webhookErrorResponse{Error: "unable to read request body"})
		return
	}

	result := s.webhookSvc.Receive(c.Request.Context(), payload, c.Request.Header)
	if !result.IsVerified() {
		reason := result.Err()
		_ = c.Error(reason)
		c.AbortWithStatusJSON(webhookRejectionStatus(reason), webhookErrorResponse{
			Error: paymentdomain.ReasonMessage(reason),
		})
		return
	}

	c.Set(logger.WebhookEventTypeKey, result.Event.Type)
	c.JSON(http.StatusOK, gin.H{})
}

func webhookRejectionStatus(reason error) int {
	switch {
	case errors.Is(reason, paymentdomain.ErrSignatureMismatch),
		errors.Is(reason, paymentdomain.ErrTimestampOutsideTolerance):
		return http.StatusForbidden
	case errors.Is(reason, paymentdomain.ErrInvalidConfig):
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}
