package mapper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stripe/stripe-go/v76"
	"github.com/tenantly/tenantly/internal/config"
	organizationdomain "github.com/tenantly/tenantly/internal/organization/domain"
)

func testCatalog() config.Catalog {
	return config.Catalog{
		SeatPriceID:    "price_seat",
		MeteredPriceID: "price_metered",
		Plans: map[string]string{
			"starter": "price_starter",
			"pro":     "price_pro",
		},
	}
}

func subWithItems(status stripe.SubscriptionStatus, items ...*stripe.SubscriptionItem) *stripe.Subscription {
	return &stripe.Subscription{
		ID:     "sub_123",
		Status: status,
		Items:  &stripe.SubscriptionItemList{Data: items},
	}
}

func item(priceID string, quantity int64) *stripe.SubscriptionItem {
	return &stripe.SubscriptionItem{
		ID:       "si_" + priceID,
		Price:    &stripe.Price{ID: priceID},
		Quantity: quantity,
	}
}

func TestMapSubscription(t *testing.T) {
	catalog := testCatalog()
	pro := "pro"
	starter := "starter"

	tests := []struct {
		name string
		sub  *stripe.Subscription
		want organizationdomain.SubscriptionState
	}{
		{
			name: "base plus seats plus metered",
			sub: subWithItems(stripe.SubscriptionStatusActive,
				item("price_pro", 1),
				item("price_seat", 12),
				item("price_metered", 0),
			),
			want: organizationdomain.SubscriptionState{
				SubscriptionID: "sub_123",
				Status:         organizationdomain.SubscriptionStatusActive,
				Plan:           &pro,
				SeatCount:      12,
			},
		},
		{
			name: "base only, no seat item",
			sub:  subWithItems(stripe.SubscriptionStatusTrialing, item("price_starter", 1)),
			want: organizationdomain.SubscriptionState{
				SubscriptionID: "sub_123",
				Status:         organizationdomain.SubscriptionStatusTrialing,
				Plan:           &starter,
				SeatCount:      0,
			},
		},
		{
			name: "unrecognized base price yields nil plan",
			sub: subWithItems(stripe.SubscriptionStatusActive,
				item("price_legacy", 1),
				item("price_seat", 3),
			),
			want: organizationdomain.SubscriptionState{
				SubscriptionID: "sub_123",
				Status:         organizationdomain.SubscriptionStatusActive,
				Plan:           nil,
				SeatCount:      3,
			},
		},
		{
			name: "status passthrough for unknown lifecycle values",
			sub:  subWithItems(stripe.SubscriptionStatus("paused"), item("price_pro", 1)),
			want: organizationdomain.SubscriptionState{
				SubscriptionID: "sub_123",
				Status:         organizationdomain.SubscriptionStatus("paused"),
				Plan:           &pro,
				SeatCount:      0,
			},
		},
		{
			name: "no items",
			sub:  &stripe.Subscription{ID: "sub_123", Status: stripe.SubscriptionStatusCanceled},
			want: organizationdomain.SubscriptionState{
				SubscriptionID: "sub_123",
				Status:         organizationdomain.SubscriptionStatusCanceled,
			},
		},
		{
			name: "nil subscription",
			sub:  nil,
			want: organizationdomain.SubscriptionState{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := MapSubscription(tc.sub, catalog)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestMapSubscription_Deterministic(t *testing.T) {
	catalog := testCatalog()
	sub := subWithItems(stripe.SubscriptionStatusActive,
		item("price_pro", 1),
		item("price_seat", 5),
	)

	first := MapSubscription(sub, catalog)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, MapSubscription(sub, catalog))
	}
}
