// Package webhook reconciles provider events into the local subscription
// snapshot. Events arrive at-least-once and in any order; every handler is
// an idempotent overwrite guarded by the event timestamp.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stripe/stripe-go/v76"
	stripewebhook "github.com/stripe/stripe-go/v76/webhook"
	"github.com/tenantly/tenantly/internal/billing/domain"
	"github.com/tenantly/tenantly/internal/billing/mapper"
	"github.com/tenantly/tenantly/internal/config"
	"github.com/tenantly/tenantly/internal/observability/metrics"
	organizationdomain "github.com/tenantly/tenantly/internal/organization/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	outcomeApplied      = "applied"
	outcomeSkippedStale = "skipped_stale"
	outcomeAcknowledged = "acknowledged"
	outcomeRejected     = "rejected"
	outcomeFailed       = "failed"
	outcomeOrgNotFound  = "org_not_found"
)

type ReconcilerParam struct {
	fx.In

	Log     *zap.Logger
	Config  config.Config
	Orgs    organizationdomain.Repository
	Metrics *metrics.Metrics `optional:"true"`
}

type Reconciler struct {
	log     *zap.Logger
	cfg     config.BillingConfig
	orgs    organizationdomain.Repository
	metrics *metrics.Metrics
}

func NewReconciler(p ReconcilerParam) *Reconciler {
	return &Reconciler{
		log:     p.Log.Named("billing.webhook"),
		cfg:     p.Config.Billing,
		orgs:    p.Orgs,
		metrics: p.Metrics,
	}
}

// HandleEvent verifies and applies one webhook delivery. A nil return means
// the event is consumed and the provider must not redeliver it; an error
// means the delivery should be retried.
func (r *Reconciler) HandleEvent(ctx context.Context, payload []byte, sigHeader string) error {
	event, err := stripewebhook.ConstructEvent(payload, sigHeader, r.cfg.WebhookSecret)
	if err != nil {
		r.count("unknown", outcomeRejected)
		return fmt.Errorf("%w: %v", domain.ErrInvalidWebhookSignature, err)
	}

	eventAt := time.Unix(event.Created, 0).UTC()
	eventType := string(event.Type)

	ctx, span := otel.Tracer("billing.webhook").Start(ctx, "webhook.handle",
		oteltrace.WithSpanKind(oteltrace.SpanKindConsumer),
		oteltrace.WithAttributes(
			attribute.String("stripe.event.id", event.ID),
			attribute.String("stripe.event.type", eventType),
		),
	)
	defer span.End()

	log := r.log.With(
		zap.String("event_id", event.ID),
		zap.String("event_type", eventType),
		zap.Time("event_at", eventAt),
	)

	switch eventType {
	case "customer.subscription.created", "customer.subscription.updated":
		return r.applySubscription(ctx, log, event, eventAt, false)

	case "customer.subscription.deleted":
		return r.applySubscription(ctx, log, event, eventAt, true)

	case "invoice.payment_failed":
		return r.markPastDue(ctx, log, event, eventAt)

	case "invoice.finalized", "checkout.session.completed":
		// Observed but snapshot state comes from subscription events.
		log.Debug("event acknowledged")
		r.count(eventType, outcomeAcknowledged)
		return nil

	default:
		log.Debug("unhandled event type acknowledged")
		r.count(eventType, outcomeAcknowledged)
		return nil
	}
}

func (r *Reconciler) applySubscription(ctx context.Context, log *zap.Logger, event stripe.Event, eventAt time.Time, deleted bool) error {
	eventType := string(event.Type)

	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		log.Warn("malformed subscription payload, acknowledging", zap.Error(err))
		r.count(eventType, outcomeAcknowledged)
		return nil
	}

	orgID, ok := r.resolveOrg(log, sub.Metadata)
	if !ok {
		r.count(eventType, outcomeAcknowledged)
		return nil
	}

	var state organizationdomain.SubscriptionState
	if deleted {
		state = organizationdomain.SubscriptionState{
			Status:    organizationdomain.SubscriptionStatusCanceled,
			SeatCount: 0,
		}
	} else {
		state = mapper.MapSubscription(&sub, r.cfg.Catalog)
	}

	applied, err := r.orgs.ApplySubscriptionState(ctx, orgID, state, eventAt)
	if err != nil {
		r.count(eventType, outcomeFailed)
		return fmt.Errorf("apply subscription state: %w", err)
	}
	if !applied {
		return r.classifySkip(ctx, log, eventType, orgID)
	}

	log.Info("subscription state applied",
		zap.String("org_id", orgID.String()),
		zap.String("status", string(state.Status)),
		zap.Int64("seat_count", state.SeatCount),
	)
	r.count(eventType, outcomeApplied)
	return nil
}

func (r *Reconciler) markPastDue(ctx context.Context, log *zap.Logger, event stripe.Event, eventAt time.Time) error {
	eventType := string(event.Type)

	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		log.Warn("malformed invoice payload, acknowledging", zap.Error(err))
		r.count(eventType, outcomeAcknowledged)
		return nil
	}

	orgID, ok := r.resolveOrg(log, inv.Metadata)
	if !ok {
		r.count(eventType, outcomeAcknowledged)
		return nil
	}

	applied, err := r.orgs.MarkPastDue(ctx, orgID, eventAt)
	if err != nil {
		r.count(eventType, outcomeFailed)
		return fmt.Errorf("mark past due: %w", err)
	}
	if !applied {
		return r.classifySkip(ctx, log, eventType, orgID)
	}

	log.Info("organization marked past due", zap.String("org_id", orgID.String()))
	r.count(eventType, outcomeApplied)
	return nil
}

// classifySkip separates the two reasons a guarded write matches no row: the
// organization does not exist locally, or a newer event was already applied.
// Both consume the delivery; only the labels differ.
func (r *Reconciler) classifySkip(ctx context.Context, log *zap.Logger, eventType string, orgID snowflake.ID) error {
	if _, err := r.orgs.Get(ctx, orgID); err != nil {
		if errors.Is(err, organizationdomain.ErrOrganizationNotFound) {
			log.Warn("organization not found, acknowledging", zap.String("org_id", orgID.String()))
			r.count(eventType, outcomeOrgNotFound)
			return nil
		}
		r.count(eventType, outcomeFailed)
		return fmt.Errorf("resolve organization: %w", err)
	}

	log.Info("stale event skipped", zap.String("org_id", orgID.String()))
	r.count(eventType, outcomeSkippedStale)
	return nil
}

// resolveOrg extracts the organization id stamped into provider metadata at
// checkout time. An event that cannot be routed is logged and acknowledged
// rather than retried, since redelivery will never fix missing metadata.
func (r *Reconciler) resolveOrg(log *zap.Logger, metadata map[string]string) (snowflake.ID, bool) {
	raw, ok := metadata["organization_id"]
	if !ok || raw == "" {
		log.Warn("event has no organization metadata, acknowledging")
		return 0, false
	}

	orgID, err := snowflake.ParseString(raw)
	if err != nil {
		log.Warn("unparseable organization metadata, acknowledging",
			zap.String("organization_id", raw),
			zap.Error(err),
		)
		return 0, false
	}
	return orgID, true
}

func (r *Reconciler) count(eventType, outcome string) {
	if r.metrics == nil {
		return
	}
	r.metrics.WebhookEvents.WithLabelValues(eventType, outcome).Inc()
}
