// Package stripeadapter implements the payment provider contract on the
// Stripe SDK.
package stripeadapter

import (
	"context"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/tenantly/tenantly/internal/billing/domain"
	"github.com/tenantly/tenantly/internal/config"
)

type Provider struct {
	api *client.API
}

// New builds a Stripe-backed provider. The client is constructed once per
// process and injected wherever provider access is needed; tests substitute
// a fake implementation of domain.Provider instead.
func New(cfg config.Config) *Provider {
	return &Provider{api: client.New(cfg.Billing.StripeSecretKey, nil)}
}

func (p *Provider) CreateCustomer(ctx context.Context, params domain.CreateCustomerParams) (*stripe.Customer, error) {
	cp := &stripe.CustomerParams{
		Email:    stripe.String(params.Email),
		Name:     stripe.String(params.Name),
		Metadata: params.Metadata,
	}
	cp.Context = ctx
	return p.api.Customers.New(cp)
}

func (p *Provider) CreateCheckoutSession(ctx context.Context, params domain.CheckoutParams) (*stripe.CheckoutSession, error) {
	cp := &stripe.CheckoutSessionParams{
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer: stripe.String(params.CustomerID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(params.PriceID),
				Quantity: stripe.Int64(params.Quantity),
			},
		},
		SuccessURL: stripe.String(params.SuccessURL),
		CancelURL:  stripe.String(params.CancelURL),
	}
	if len(params.SubscriptionMetadata) > 0 {
		cp.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: params.SubscriptionMetadata,
		}
	}
	cp.Context = ctx
	return p.api.CheckoutSessions.New(cp)
}

func (p *Provider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (*stripe.BillingPortalSession, error) {
	bp := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	bp.Context = ctx
	return p.api.BillingPortalSessions.New(bp)
}

func (p *Provider) GetSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	sp := &stripe.SubscriptionParams{}
	sp.Context = ctx
	return p.api.Subscriptions.Get(subscriptionID, sp)
}

func (p *Provider) UpdateSubscriptionItems(ctx context.Context, subscriptionID string, items []*stripe.SubscriptionItemsParams) (*stripe.Subscription, error) {
	sp := &stripe.SubscriptionParams{Items: items}
	sp.Context = ctx
	return p.api.Subscriptions.Update(subscriptionID, sp)
}

func (p *Provider) SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*stripe.Subscription, error) {
	sp := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(cancel)}
	sp.Context = ctx
	return p.api.Subscriptions.Update(subscriptionID, sp)
}

func (p *Provider) CancelNow(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	cp := &stripe.SubscriptionCancelParams{}
	cp.Context = ctx
	return p.api.Subscriptions.Cancel(subscriptionID, cp)
}

func (p *Provider) RecordMeteredUsage(ctx context.Context, subscriptionItemID string, quantity int64, at time.Time) (*stripe.UsageRecord, error) {
	up := &stripe.UsageRecordParams{
		SubscriptionItem: stripe.String(subscriptionItemID),
		Quantity:         stripe.Int64(quantity),
		Action:           stripe.String("increment"),
	}
	if !at.IsZero() {
		up.Timestamp = stripe.Int64(at.Unix())
	}
	up.Context = ctx
	return p.api.UsageRecords.New(up)
}

var _ domain.Provider = (*Provider)(nil)
