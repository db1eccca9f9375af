// Package mapper translates provider subscription objects into the local
// billing snapshot. The translation is pure: no I/O, no local state, same
// input always yields the same output. That purity is what makes webhook
// reconciliation idempotent.
package mapper

import (
	"github.com/stripe/stripe-go/v76"
	"github.com/tenantly/tenantly/internal/config"
	organizationdomain "github.com/tenantly/tenantly/internal/organization/domain"
)

// MapSubscription derives {status, plan, seat count} from a provider
// subscription:
//
//   - status is the provider's lifecycle status, passed through unchanged
//   - seat count is the quantity of the per-seat price's line item, 0 when
//     that price is absent
//   - plan is resolved from the line item that is neither the per-seat nor
//     the metered price; an unrecognized base item yields a nil plan, not
//     an error
func MapSubscription(sub *stripe.Subscription, catalog config.Catalog) organizationdomain.SubscriptionState {
	state := organizationdomain.SubscriptionState{}
	if sub == nil {
		return state
	}

	state.SubscriptionID = sub.ID
	state.Status = organizationdomain.SubscriptionStatus(sub.Status)

	if sub.Items == nil {
		return state
	}
	for _, item := range sub.Items.Data {
		if item == nil || item.Price == nil {
			continue
		}
		switch {
		case catalog.IsSeatPrice(item.Price.ID):
			state.SeatCount = item.Quantity
		case catalog.IsMeteredPrice(item.Price.ID):
			// Metered items carry no snapshot state.
		default:
			if plan, ok := catalog.PlanForPrice(item.Price.ID); ok {
				p := plan
				state.Plan = &p
			}
		}
	}
	return state
}
