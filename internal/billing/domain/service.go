package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type StartCheckoutRequest struct {
	OrgID     snowflake.ID `json:"org_id"`
	PriceID   string       `json:"price_id"`
	PerSeat   bool         `json:"per_seat"`
	SeatCount int64        `json:"seat_count"`
}

type CheckoutSession struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// CommandService orchestrates provider-side billing mutations and persists
// the resulting identifiers. Only EnsureCustomer is idempotent by design;
// nothing here retries on ambiguous failure.
type CommandService interface {
	// EnsureCustomer creates a provider customer once. Called again after
	// the id is set, it returns the existing id without a provider call.
	EnsureCustomer(ctx context.Context, orgID snowflake.ID, email string) (string, error)

	// StartCheckout opens a hosted checkout session. Per-seat checkouts
	// carry the requested seat count as the line item quantity, all others
	// quantity 1. Requires the organization to already have a customer.
	StartCheckout(ctx context.Context, req StartCheckoutRequest) (*CheckoutSession, error)

	// OpenPortal opens a self-serve billing portal session.
	OpenPortal(ctx context.Context, orgID snowflake.ID, returnURL string) (string, error)

	// SetSeats updates the subscription's per-seat item quantity in place,
	// adding the item at the configured seat price when absent. Negative
	// counts are rejected before any provider call.
	SetSeats(ctx context.Context, subscriptionID string, seatCount int64) error

	// EmitMeteredUsage reports quantity against the subscription's metered
	// item. Fails when the subscription has no such item; it is never
	// created implicitly.
	EmitMeteredUsage(ctx context.Context, subscriptionID string, quantity int64, at time.Time) (string, error)

	// Cancel terminates immediately or marks cancel-at-period-end.
	Cancel(ctx context.Context, subscriptionID string, immediate bool) error

	// Reactivate clears a pending cancel-at-period-end flag.
	Reactivate(ctx context.Context, subscriptionID string) error
}

var (
	ErrCustomerMissing          = errors.New("billing_customer_missing")
	ErrSubscriptionMissing      = errors.New("billing_subscription_missing")
	ErrInvalidSeatCount         = errors.New("invalid_seat_count")
	ErrInvalidQuantity          = errors.New("invalid_quantity")
	ErrInvalidPrice             = errors.New("invalid_price")
	ErrSeatPriceNotConfigured   = errors.New("seat_price_not_configured")
	ErrMeteredItemNotConfigured = errors.New("metered_item_not_configured")
	ErrInvalidWebhookSignature  = errors.New("invalid_webhook_signature")
	ErrProviderUnavailable      = errors.New("payment_provider_unavailable")
)
