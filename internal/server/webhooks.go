package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Webhook payload cap; Stripe events are far smaller.
const maxWebhookBody = 1 << 20

// StripeWebhook verifies and reconciles one provider delivery. The raw
// body is read before any parsing because signature verification covers
// the exact bytes sent.
func (s *Server) StripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	sigHeader := c.GetHeader("Stripe-Signature")
	if err := s.reconciler.HandleEvent(c.Request.Context(), payload, sigHeader); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
