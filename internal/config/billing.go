package config

import (
	"os"
	"strings"
)

// BillingConfig holds Stripe credentials and the price catalog.
type BillingConfig struct {
	StripeSecretKey     string
	WebhookSecret       string
	CheckoutSuccessURL  string
	CheckoutCancelURL   string
	DefaultPortalReturn string

	Catalog Catalog
}

// Catalog maps internal plan keys to provider price ids, plus the two
// special prices every subscription may carry: the per-seat price and the
// metered usage price.
type Catalog struct {
	SeatPriceID    string
	MeteredPriceID string

	// plan key -> price id
	Plans map[string]string
}

// PlanForPrice resolves a provider price id to an internal plan key.
// Returns false for the seat price, the metered price, and any price id
// not present in the catalog.
func (c Catalog) PlanForPrice(priceID string) (string, bool) {
	if priceID == "" || priceID == c.SeatPriceID || priceID == c.MeteredPriceID {
		return "", false
	}
	for plan, id := range c.Plans {
		if id == priceID {
			return plan, true
		}
	}
	return "", false
}

// IsSeatPrice reports whether the price id is the configured per-seat price.
func (c Catalog) IsSeatPrice(priceID string) bool {
	return priceID != "" && priceID == c.SeatPriceID
}

// IsMeteredPrice reports whether the price id is the configured metered price.
func (c Catalog) IsMeteredPrice(priceID string) bool {
	return priceID != "" && priceID == c.MeteredPriceID
}

func loadBilling() BillingConfig {
	return BillingConfig{
		StripeSecretKey:     getenv("STRIPE_SECRET_KEY", ""),
		WebhookSecret:       getenv("STRIPE_WEBHOOK_SECRET", ""),
		CheckoutSuccessURL:  getenv("BILLING_CHECKOUT_SUCCESS_URL", "http://localhost:3000/billing?success=true"),
		CheckoutCancelURL:   getenv("BILLING_CHECKOUT_CANCEL_URL", "http://localhost:3000/billing?canceled=true"),
		DefaultPortalReturn: getenv("BILLING_PORTAL_RETURN_URL", "http://localhost:3000/billing"),
		Catalog: Catalog{
			SeatPriceID:    getenv("STRIPE_SEAT_PRICE_ID", ""),
			MeteredPriceID: getenv("STRIPE_METERED_PRICE_ID", ""),
			Plans:          parsePlanCatalog(os.Getenv("BILLING_PLANS")),
		},
	}
}

// parsePlanCatalog parses "starter=price_abc,pro=price_def" into a plan map.
func parsePlanCatalog(raw string) map[string]string {
	plans := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, price, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		price = strings.TrimSpace(price)
		if !ok || key == "" || price == "" {
			continue
		}
		plans[key] = price
	}
	return plans
}
