package server

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	stripewebhook "github.com/stripe/stripe-go/v76/webhook"
	"github.com/tenantly/tenantly/internal/authorization"
	billingdomain "github.com/tenantly/tenantly/internal/billing/domain"
	billingservice "github.com/tenantly/tenantly/internal/billing/service"
	billingwebhook "github.com/tenantly/tenantly/internal/billing/webhook"
	"github.com/tenantly/tenantly/internal/clock"
	"github.com/tenantly/tenantly/internal/config"
	organizationdomain "github.com/tenantly/tenantly/internal/organization/domain"
	"github.com/tenantly/tenantly/internal/organization/repository"
	usagedomain "github.com/tenantly/tenantly/internal/usage/domain"
	usageservice "github.com/tenantly/tenantly/internal/usage/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubProvider struct {
	checkoutCalls int
	meteredCalls  int
	subscription  *stripe.Subscription
}

func (f *stubProvider) CreateCustomer(ctx context.Context, params billingdomain.CreateCustomerParams) (*stripe.Customer, error) {
	return &stripe.Customer{ID: "cus_test"}, nil
}

func (f *stubProvider) CreateCheckoutSession(ctx context.Context, params billingdomain.CheckoutParams) (*stripe.CheckoutSession, error) {
	f.checkoutCalls++
	return &stripe.CheckoutSession{ID: "cs_test", URL: "https://checkout.example/cs_test"}, nil
}

func (f *stubProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (*stripe.BillingPortalSession, error) {
	return &stripe.BillingPortalSession{URL: "https://portal.example"}, nil
}

func (f *stubProvider) GetSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	return f.subscription, nil
}

func (f *stubProvider) UpdateSubscriptionItems(ctx context.Context, subscriptionID string, items []*stripe.SubscriptionItemsParams) (*stripe.Subscription, error) {
	return f.subscription, nil
}

func (f *stubProvider) SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*stripe.Subscription, error) {
	return f.subscription, nil
}

func (f *stubProvider) CancelNow(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	return f.subscription, nil
}

func (f *stubProvider) RecordMeteredUsage(ctx context.Context, subscriptionItemID string, quantity int64, at time.Time) (*stripe.UsageRecord, error) {
	f.meteredCalls++
	return &stripe.UsageRecord{ID: "mbur_test"}, nil
}

type testHarness struct {
	server   *Server
	orgs     organizationdomain.Repository
	provider *stubProvider
	db       *gorm.DB
}

func newTestServer(t *testing.T) *testHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&organizationdomain.Organization{},
		&organizationdomain.OrganizationMember{},
		&usagedomain.UsageRecord{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := config.Config{
		Billing: config.BillingConfig{
			WebhookSecret: "whsec_test",
			Catalog: config.Catalog{
				SeatPriceID:    "price_seat",
				MeteredPriceID: "price_metered",
				Plans:          map[string]string{"pro": "price_pro"},
			},
		},
	}

	log := zap.NewNop()
	orgs := repository.Provide(conn)
	authz := authorization.NewService(orgs, log)

	usageSvc := usageservice.NewService(usageservice.ServiceParam{
		DB:    conn,
		Log:   log,
		GenID: node,
		Clock: clock.NewFake(time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)),
	})

	provider := &stubProvider{}
	billingSvc := billingservice.NewCommandService(billingservice.ServiceParam{
		Log:      log,
		Config:   cfg,
		Provider: provider,
		Orgs:     orgs,
	})

	reconciler := billingwebhook.NewReconciler(billingwebhook.ReconcilerParam{
		Log:    log,
		Config: cfg,
		Orgs:   orgs,
	})

	srv := NewServer(ServerParams{
		Gin:        NewEngine(log, nil),
		Cfg:        cfg,
		DB:         conn,
		Log:        log,
		GenID:      node,
		AuthzSvc:   authz,
		OrgRepo:    orgs,
		UsageSvc:   usageSvc,
		BillingSvc: billingSvc,
		Reconciler: reconciler,
	})

	ctx := context.Background()
	require.NoError(t, orgs.Create(ctx, &organizationdomain.Organization{ID: 500, Name: "Acme", Slug: "acme"}))
	require.NoError(t, orgs.AddMember(ctx, &organizationdomain.OrganizationMember{
		ID: 5001, OrgID: 500, UserID: 9001, Role: organizationdomain.RoleAdmin,
	}))
	require.NoError(t, orgs.AddMember(ctx, &organizationdomain.OrganizationMember{
		ID: 5002, OrgID: 500, UserID: 9002, Role: organizationdomain.RoleMember,
	}))

	return &testHarness{server: srv, orgs: orgs, provider: provider, db: conn}
}

func (h *testHarness) do(method, path, userID string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	h.server.Engine().ServeHTTP(w, req)
	return w
}

func TestRoutes_RequireIdentity(t *testing.T) {
	h := newTestServer(t)

	w := h.do(http.MethodPost, "/v1/organizations/500/usage", "", gin.H{
		"dimension": "api_calls", "quantity": 1,
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRoutes_NonMemberForbidden(t *testing.T) {
	h := newTestServer(t)

	w := h.do(http.MethodPost, "/v1/organizations/500/usage", "7777", gin.H{
		"dimension": "api_calls", "quantity": 1,
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRecordUsage_AdminOnly(t *testing.T) {
	h := newTestServer(t)

	// Plain members can read but not write.
	w := h.do(http.MethodPost, "/v1/organizations/500/usage", "9002", gin.H{
		"dimension": "api_calls", "quantity": 1,
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = h.do(http.MethodPost, "/v1/organizations/500/usage", "9001", gin.H{
		"dimension": "api_calls", "quantity": 3, "idempotency_key": "k1",
	})
	assert.Equal(t, http.StatusCreated, w.Code)

	// Retried delivery reports the duplicate instead of double-counting.
	w = h.do(http.MethodPost, "/v1/organizations/500/usage", "9001", gin.H{
		"dimension": "api_calls", "quantity": 3, "idempotency_key": "k1",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	var res usagedomain.RecordResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.True(t, res.WasDuplicate)
}

func TestRecordUsage_NegativeQuantity(t *testing.T) {
	h := newTestServer(t)

	w := h.do(http.MethodPost, "/v1/organizations/500/usage", "9001", gin.H{
		"dimension": "api_calls", "quantity": -5,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecordUsage_EmitToProvider(t *testing.T) {
	h := newTestServer(t)

	plan := "pro"
	applied, err := h.orgs.ApplySubscriptionState(context.Background(), 500, organizationdomain.SubscriptionState{
		SubscriptionID: "sub_live",
		Status:         organizationdomain.SubscriptionStatusActive,
		Plan:           &plan,
	}, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.True(t, applied)

	h.provider.subscription = &stripe.Subscription{
		ID: "sub_live",
		Items: &stripe.SubscriptionItemList{Data: []*stripe.SubscriptionItem{
			{ID: "si_metered", Price: &stripe.Price{ID: "price_metered"}},
		}},
	}

	w := h.do(http.MethodPost, "/v1/organizations/500/usage", "9001", gin.H{
		"dimension": "api_calls", "quantity": 7, "idempotency_key": "k-emit", "emit_to_provider": true,
	})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 1, h.provider.meteredCalls)

	// The duplicate path must not report the quantity a second time.
	w = h.do(http.MethodPost, "/v1/organizations/500/usage", "9001", gin.H{
		"dimension": "api_calls", "quantity": 7, "idempotency_key": "k-emit", "emit_to_provider": true,
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, h.provider.meteredCalls)
}

func TestUsageSummary_MemberAllowed(t *testing.T) {
	h := newTestServer(t)

	w := h.do(http.MethodPost, "/v1/organizations/500/usage", "9001", gin.H{
		"dimension": "api_calls", "quantity": 4,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = h.do(http.MethodGet, "/v1/organizations/500/usage/summary?dimension=api_calls", "9002", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var summary usagedomain.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, int64(4), summary.Total)
}

func TestSetSeats_WithoutSubscription(t *testing.T) {
	h := newTestServer(t)

	w := h.do(http.MethodPut, "/v1/organizations/500/billing/seats", "9001", gin.H{
		"seat_count": 5,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestStartCheckout_MissingCustomer(t *testing.T) {
	h := newTestServer(t)

	w := h.do(http.MethodPost, "/v1/organizations/500/billing/checkout", "9001", gin.H{
		"price_id": "price_pro",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestStartCheckout_WithCustomerEmail(t *testing.T) {
	h := newTestServer(t)

	w := h.do(http.MethodPost, "/v1/organizations/500/billing/checkout", "9001", gin.H{
		"price_id":       "price_pro",
		"customer_email": "owner@acme.test",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	var sess billingdomain.CheckoutSession
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
	assert.Equal(t, "cs_test", sess.SessionID)
}

func TestStripeWebhook_BadSignature(t *testing.T) {
	h := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/stripe", bytes.NewBufferString(`{}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	w := httptest.NewRecorder()
	h.server.Engine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStripeWebhook_StoreFailureAnswers5xx(t *testing.T) {
	h := newTestServer(t)

	payload, err := json.Marshal(gin.H{
		"id":          "evt_store_down",
		"type":        "customer.subscription.updated",
		"created":     time.Now().Unix(),
		"api_version": stripe.APIVersion,
		"data": gin.H{"object": gin.H{
			"id":       "sub_live",
			"status":   "active",
			"metadata": gin.H{"organization_id": "500"},
		}},
	})
	require.NoError(t, err)

	now := time.Now()
	sig := stripewebhook.ComputeSignature(now, payload, "whsec_test")
	header := fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(sig))

	sqlDB, err := h.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", header)
	w := httptest.NewRecorder()
	h.server.Engine().ServeHTTP(w, req)

	// The provider redelivers on 5xx; the event must not be consumed.
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestReadiness(t *testing.T) {
	h := newTestServer(t)

	w := h.do(http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestInvalidOrgIDParam(t *testing.T) {
	h := newTestServer(t)

	w := h.do(http.MethodPost, "/v1/organizations/not-a-number/usage", "9001", gin.H{
		"dimension": "api_calls", "quantity": 1,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
