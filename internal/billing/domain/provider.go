// Package domain defines the billing command contracts and the payment
// provider surface the commands depend on.
package domain

import (
	"context"
	"time"

	"github.com/stripe/stripe-go/v76"
)

type CreateCustomerParams struct {
	Email    string
	Name     string
	Metadata map[string]string
}

type CheckoutParams struct {
	CustomerID string
	PriceID    string
	Quantity   int64
	SuccessURL string
	CancelURL  string

	// SubscriptionMetadata is stamped onto the subscription the checkout
	// creates, so webhook events can be routed back to the organization.
	SubscriptionMetadata map[string]string
}

// Provider is the payment provider surface consumed by the command service.
// Every call is a network round trip with provider-side effects; none are
// retried here, and a timeout means unknown outcome, not failure.
type Provider interface {
	CreateCustomer(ctx context.Context, params CreateCustomerParams) (*stripe.Customer, error)
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*stripe.CheckoutSession, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (*stripe.BillingPortalSession, error)

	GetSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error)
	UpdateSubscriptionItems(ctx context.Context, subscriptionID string, items []*stripe.SubscriptionItemsParams) (*stripe.Subscription, error)
	SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*stripe.Subscription, error)
	CancelNow(ctx context.Context, subscriptionID string) (*stripe.Subscription, error)

	RecordMeteredUsage(ctx context.Context, subscriptionItemID string, quantity int64, at time.Time) (*stripe.UsageRecord, error)
}
