package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/tenantly/tenantly/internal/billing/domain"
)

type startCheckoutRequest struct {
	PriceID   string `json:"price_id"`
	PerSeat   bool   `json:"per_seat"`
	SeatCount int64  `json:"seat_count"`

	// CustomerEmail, when set, provisions the provider customer first so
	// a fresh organization can check out in one call.
	CustomerEmail string `json:"customer_email"`
}

func (s *Server) StartCheckout(c *gin.Context) {
	orgID := orgIDFromContext(c)

	var req startCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	ctx := c.Request.Context()
	if email := strings.TrimSpace(req.CustomerEmail); email != "" {
		if _, err := s.billingSvc.EnsureCustomer(ctx, orgID, email); err != nil {
			AbortWithError(c, err)
			return
		}
	}

	sess, err := s.billingSvc.StartCheckout(ctx, billingdomain.StartCheckoutRequest{
		OrgID:     orgID,
		PriceID:   strings.TrimSpace(req.PriceID),
		PerSeat:   req.PerSeat,
		SeatCount: req.SeatCount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, sess)
}

type openPortalRequest struct {
	ReturnURL string `json:"return_url"`
}

func (s *Server) OpenPortal(c *gin.Context) {
	var req openPortalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	url, err := s.billingSvc.OpenPortal(c.Request.Context(), orgIDFromContext(c), strings.TrimSpace(req.ReturnURL))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}

type setSeatsRequest struct {
	SeatCount *int64 `json:"seat_count"`
}

func (s *Server) SetSeats(c *gin.Context) {
	var req setSeatsRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SeatCount == nil {
		AbortWithError(c, newValidationError("seat_count", "invalid_seat_count", "seat_count is required"))
		return
	}

	subscriptionID, err := s.subscriptionIDForOrg(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.billingSvc.SetSeats(c.Request.Context(), subscriptionID, *req.SeatCount); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"seat_count": *req.SeatCount})
}

type cancelRequest struct {
	Immediate bool `json:"immediate"`
}

func (s *Server) CancelSubscription(c *gin.Context) {
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	subscriptionID, err := s.subscriptionIDForOrg(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.billingSvc.Cancel(c.Request.Context(), subscriptionID, req.Immediate); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "cancellation_requested", "immediate": req.Immediate})
}

func (s *Server) ReactivateSubscription(c *gin.Context) {
	subscriptionID, err := s.subscriptionIDForOrg(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.billingSvc.Reactivate(c.Request.Context(), subscriptionID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "reactivated"})
}

// subscriptionIDForOrg reads the subscription id from the local snapshot.
// The snapshot is written by webhook reconciliation, so an org that never
// completed checkout has none.
func (s *Server) subscriptionIDForOrg(c *gin.Context) (string, error) {
	org, err := s.orgRepo.Get(c.Request.Context(), orgIDFromContext(c))
	if err != nil {
		return "", err
	}
	if org.StripeSubscriptionID == nil || *org.StripeSubscriptionID == "" {
		return "", billingdomain.ErrSubscriptionMissing
	}
	return *org.StripeSubscriptionID, nil
}
