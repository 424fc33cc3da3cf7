package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	checkoutdomain "github.com/smallbiznis/checkout/internal/checkout/domain"
)

func (s *Server) GetConfig(c *gin.Context) {
	cfg, err := s.checkoutSvc.GetPublicConfig(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, cfg)
}

func (s *Server) GetCheckoutSession(c *gin.Context) {
	session, err := s.checkoutSvc.GetCheckoutSession(c.Request.Context(), c.Query("sessionId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Data(http.StatusOK, "application/json; charset=utf-8", session.Raw)
}

func (s *Server) CreateCheckoutSession(c *gin.Context) {
	var req checkoutdomain.CreateCheckoutSessionRequest
	// An empty body is a request for a single item.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.checkoutSvc.CreateCheckoutSession(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
