package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stripe/stripe-go/v76"
	"github.com/tenantly/tenantly/internal/billing/domain"
	"github.com/tenantly/tenantly/internal/config"
	organizationdomain "github.com/tenantly/tenantly/internal/organization/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	Log      *zap.Logger
	Config   config.Config
	Provider domain.Provider
	Orgs     organizationdomain.Repository
}

type commandService struct {
	log      *zap.Logger
	cfg      config.BillingConfig
	provider domain.Provider
	orgs     organizationdomain.Repository
}

func NewCommandService(p ServiceParam) domain.CommandService {
	return &commandService{
		log:      p.Log.Named("billing.command"),
		cfg:      p.Config.Billing,
		provider: p.Provider,
		orgs:     p.Orgs,
	}
}

func (s *commandService) EnsureCustomer(ctx context.Context, orgID snowflake.ID, email string) (string, error) {
	org, err := s.orgs.Get(ctx, orgID)
	if err != nil {
		return "", err
	}

	if org.StripeCustomerID != nil {
		return *org.StripeCustomerID, nil
	}

	cus, err := s.provider.CreateCustomer(ctx, domain.CreateCustomerParams{
		Email: email,
		Name:  org.Name,
		Metadata: map[string]string{
			"organization_id": orgID.String(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}

	if err := s.orgs.SetStripeCustomerID(ctx, orgID, cus.ID); err != nil {
		return "", err
	}

	// The write above is first-write-wins, so a concurrent caller may have
	// stored its own id while our provider call was in flight. Re-read and
	// return the persisted id; the loser's customer carries no subscription
	// and is harmless.
	org, err = s.orgs.Get(ctx, orgID)
	if err != nil {
		return "", err
	}
	if org.StripeCustomerID == nil {
		return "", fmt.Errorf("customer id not persisted for organization %s", orgID)
	}
	if *org.StripeCustomerID != cus.ID {
		s.log.Warn("concurrent customer creation, keeping stored id",
			zap.String("org_id", orgID.String()),
			zap.String("stored_customer_id", *org.StripeCustomerID),
			zap.String("orphan_customer_id", cus.ID),
		)
		return *org.StripeCustomerID, nil
	}

	s.log.Info("customer created",
		zap.String("org_id", orgID.String()),
		zap.String("customer_id", cus.ID),
	)
	return cus.ID, nil
}

func (s *commandService) StartCheckout(ctx context.Context, req domain.StartCheckoutRequest) (*domain.CheckoutSession, error) {
	if req.PriceID == "" {
		return nil, domain.ErrInvalidPrice
	}

	org, err := s.orgs.Get(ctx, req.OrgID)
	if err != nil {
		return nil, err
	}
	if org.StripeCustomerID == nil {
		return nil, domain.ErrCustomerMissing
	}

	quantity := int64(1)
	if req.PerSeat {
		if req.SeatCount < 1 {
			return nil, domain.ErrInvalidSeatCount
		}
		quantity = req.SeatCount
	}

	sess, err := s.provider.CreateCheckoutSession(ctx, domain.CheckoutParams{
		CustomerID: *org.StripeCustomerID,
		PriceID:    req.PriceID,
		Quantity:   quantity,
		SuccessURL: s.cfg.CheckoutSuccessURL,
		CancelURL:  s.cfg.CheckoutCancelURL,
		SubscriptionMetadata: map[string]string{
			"organization_id": req.OrgID.String(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	s.log.Info("checkout session created",
		zap.String("org_id", req.OrgID.String()),
		zap.String("session_id", sess.ID),
	)
	return &domain.CheckoutSession{SessionID: sess.ID, URL: sess.URL}, nil
}

func (s *commandService) OpenPortal(ctx context.Context, orgID snowflake.ID, returnURL string) (string, error) {
	org, err := s.orgs.Get(ctx, orgID)
	if err != nil {
		return "", err
	}
	if org.StripeCustomerID == nil {
		return "", domain.ErrCustomerMissing
	}

	if returnURL == "" {
		returnURL = s.cfg.DefaultPortalReturn
	}

	sess, err := s.provider.CreatePortalSession(ctx, *org.StripeCustomerID, returnURL)
	if err != nil {
		return "", fmt.Errorf("create portal session: %w", err)
	}
	return sess.URL, nil
}

func (s *commandService) SetSeats(ctx context.Context, subscriptionID string, seatCount int64) error {
	if seatCount < 0 {
		return domain.ErrInvalidSeatCount
	}
	if s.cfg.Catalog.SeatPriceID == "" {
		return domain.ErrSeatPriceNotConfigured
	}

	sub, err := s.provider.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return fmt.Errorf("get subscription: %w", err)
	}

	var items []*stripe.SubscriptionItemsParams
	if item := s.findSeatItem(sub); item != nil {
		items = []*stripe.SubscriptionItemsParams{
			{
				ID:       stripe.String(item.ID),
				Quantity: stripe.Int64(seatCount),
			},
		}
	} else {
		items = []*stripe.SubscriptionItemsParams{
			{
				Price:    stripe.String(s.cfg.Catalog.SeatPriceID),
				Quantity: stripe.Int64(seatCount),
			},
		}
	}

	if _, err := s.provider.UpdateSubscriptionItems(ctx, subscriptionID, items); err != nil {
		return fmt.Errorf("update subscription items: %w", err)
	}

	s.log.Info("seat count updated",
		zap.String("subscription_id", subscriptionID),
		zap.Int64("seat_count", seatCount),
	)
	return nil
}

func (s *commandService) EmitMeteredUsage(ctx context.Context, subscriptionID string, quantity int64, at time.Time) (string, error) {
	if quantity < 0 {
		return "", domain.ErrInvalidQuantity
	}

	sub, err := s.provider.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return "", fmt.Errorf("get subscription: %w", err)
	}

	item := s.findMeteredItem(sub)
	if item == nil {
		return "", domain.ErrMeteredItemNotConfigured
	}

	rec, err := s.provider.RecordMeteredUsage(ctx, item.ID, quantity, at)
	if err != nil {
		return "", fmt.Errorf("record metered usage: %w", err)
	}
	return rec.ID, nil
}

func (s *commandService) Cancel(ctx context.Context, subscriptionID string, immediate bool) error {
	if immediate {
		if _, err := s.provider.CancelNow(ctx, subscriptionID); err != nil {
			return fmt.Errorf("cancel subscription: %w", err)
		}
	} else {
		if _, err := s.provider.SetCancelAtPeriodEnd(ctx, subscriptionID, true); err != nil {
			return fmt.Errorf("schedule cancellation: %w", err)
		}
	}

	s.log.Info("subscription cancellation requested",
		zap.String("subscription_id", subscriptionID),
		zap.Bool("immediate", immediate),
	)
	return nil
}

func (s *commandService) Reactivate(ctx context.Context, subscriptionID string) error {
	if _, err := s.provider.SetCancelAtPeriodEnd(ctx, subscriptionID, false); err != nil {
		return fmt.Errorf("reactivate subscription: %w", err)
	}
	return nil
}

func (s *commandService) findSeatItem(sub *stripe.Subscription) *stripe.SubscriptionItem {
	if sub.Items == nil {
		return nil
	}
	for _, item := range sub.Items.Data {
		if item.Price != nil && s.cfg.Catalog.IsSeatPrice(item.Price.ID) {
			return item
		}
	}
	return nil
}

func (s *commandService) findMeteredItem(sub *stripe.Subscription) *stripe.SubscriptionItem {
	if sub.Items == nil {
		return nil
	}
	for _, item := range sub.Items.Data {
		if item.Price != nil && s.cfg.Catalog.IsMeteredPrice(item.Price.ID) {
			return item
		}
	}
	return nil
}
