package external

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voyage/internal/types"
)

// fakeCustomerLookup is an in-memory CustomerLookup.
type fakeCustomerLookup struct {
	customerID string
	email      string
	getErr     error
	setErr     error
	setCalls   []string
}

func (f *fakeCustomerLookup) GetBillingInfo(_ context.Context, _ string) (string, string, error) {
	if f.getErr != nil {
		return "", "", f.getErr
	}
	return f.customerID, f.email, nil
}

func (f *fakeCustomerLookup) SetStripeCustomerID(_ context.Context, _ string, customerID string) error {
	f.setCalls = append(f.setCalls, customerID)
	return f.setErr
}

func newTestStripeClient(t *testing.T, handler http.Handler, lookup CustomerLookup) *StripeClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	base := NewBaseClient(
		srv.Client(),
		"stripe-test",
		RetryPolicy{MaxRetries: 0, MinWait: time.Millisecond, MaxWait: time.Millisecond},
		"Voyage-Test/1.0",
		WithSleepFunc(noSleep),
	)
	return NewStripeClientWithBase(base, lookup, StripeClientConfig{
		SecretKey:      "sk_test_123",
		PremiumPriceID: "price_premium_monthly",
		BaseURL:        srv.URL,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestStripeClient_EnsureCustomer_FindsExisting(t *testing.T) {
	lookup := &fakeCustomerLookup{email: "ana@example.com"}
	client := newTestStripeClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/customers/search", r.URL.Path)
		assert.Contains(t, r.URL.Query().Get("query"), "acct_1")
		assert.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))
		w.Write([]byte(`{"data":[{"id":"cus_existing","email":"ana@example.com"}]}`))
	}), lookup)

	customerID, err := client.EnsureCustomer(context.Background(), "acct_1", "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, "cus_existing", customerID)
	assert.Equal(t, []string{"cus_existing"}, lookup.setCalls)
}

func TestStripeClient_EnsureCustomer_CreatesWhenMissing(t *testing.T) {
	lookup := &fakeCustomerLookup{email: "ana@example.com"}
	client := newTestStripeClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/customers/search":
			w.Write([]byte(`{"data":[]}`))
		case "/v1/customers":
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "ana@example.com", r.PostForm.Get("email"))
			assert.Equal(t, "acct_1", r.PostForm.Get("metadata[account_id]"))
			w.Write([]byte(`{"id":"cus_new","email":"ana@example.com"}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}), lookup)

	customerID, err := client.EnsureCustomer(context.Background(), "acct_1", "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, "cus_new", customerID)
	assert.Equal(t, []string{"cus_new"}, lookup.setCalls)
}

func TestStripeClient_CreateCheckoutSession_Success(t *testing.T) {
	lookup := &fakeCustomerLookup{customerID: "cus_1", email: "ana@example.com"}
	client := newTestStripeClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "cus_1", r.PostForm.Get("customer"))
		assert.Equal(t, "subscription", r.PostForm.Get("mode"))
		assert.Equal(t, "acct_1", r.PostForm.Get("client_reference_id"))
		assert.Equal(t, "price_premium_monthly", r.PostForm.Get("line_items[0][price]"))
		assert.Equal(t, "https://app.voyage.test/upgraded", r.PostForm.Get("success_url"))
		w.Write([]byte(`{"id":"cs_1","url":"https://checkout.stripe.com/c/pay/cs_1"}`))
	}), lookup)

	checkoutURL, sessionID, err := client.CreateCheckoutSession(context.Background(), "acct_1", types.RedirectURLs{
		Success: "https://app.voyage.test/upgraded",
		Cancel:  "https://app.voyage.test/pricing",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_1", checkoutURL)
	assert.Equal(t, "cs_1", sessionID)
}

func TestStripeClient_CreateCheckoutSession_EnsuresCustomerFirst(t *testing.T) {
	lookup := &fakeCustomerLookup{email: "ana@example.com"}
	client := newTestStripeClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/customers/search":
			w.Write([]byte(`{"data":[]}`))
		case "/v1/customers":
			w.Write([]byte(`{"id":"cus_created"}`))
		case "/v1/checkout/sessions":
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "cus_created", r.PostForm.Get("customer"))
			w.Write([]byte(`{"id":"cs_2","url":"https://checkout.stripe.com/c/pay/cs_2"}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}), lookup)

	_, _, err := client.CreateCheckoutSession(context.Background(), "acct_1", types.RedirectURLs{
		Success: "https://app.voyage.test/upgraded",
		Cancel:  "https://app.voyage.test/pricing",
	})
	require.NoError(t, err)
}

func TestStripeClient_CreateCheckoutSession_CardDeclined(t *testing.T) {
	lookup := &fakeCustomerLookup{customerID: "cus_1"}
	client := newTestStripeClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"error":{"type":"card_error","code":"card_declined","decline_code":"insufficient_funds","message":"Your card was declined."}}`))
	}), lookup)

	_, _, err := client.CreateCheckoutSession(context.Background(), "acct_1", types.RedirectURLs{})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodePaymentDeclined, appErr.Code)
	assert.Equal(t, "insufficient_funds", appErr.Details["decline_code"])
}

func TestStripeClient_CreatePortalSession_Success(t *testing.T) {
	lookup := &fakeCustomerLookup{customerID: "cus_1"}
	client := newTestStripeClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/billing_portal/sessions", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "cus_1", r.PostForm.Get("customer"))
		assert.Equal(t, "https://app.voyage.test/settings", r.PostForm.Get("return_url"))
		w.Write([]byte(`{"id":"bps_1","url":"https://billing.stripe.com/p/session/bps_1"}`))
	}), lookup)

	portalURL, err := client.CreatePortalSession(context.Background(), "acct_1", "https://app.voyage.test/settings")
	require.NoError(t, err)
	assert.Equal(t, "https://billing.stripe.com/p/session/bps_1", portalURL)
}

func TestStripeClient_CreatePortalSession_NoCustomer(t *testing.T) {
	lookup := &fakeCustomerLookup{email: "ana@example.com"}
	client := newTestStripeClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no Stripe call expected without a customer ID")
	}), lookup)

	_, err := client.CreatePortalSession(context.Background(), "acct_1", "https://app.voyage.test/settings")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundProfile, appErr.Code)
}

func TestStripeClient_GetSubscription_Active(t *testing.T) {
	lookup := &fakeCustomerLookup{customerID: "cus_1"}
	client := newTestStripeClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/subscriptions", r.URL.Path)
		assert.Equal(t, "cus_1", r.URL.Query().Get("customer"))
		w.Write([]byte(`{"data":[{
			"id":"sub_1",
			"status":"active",
			"cancel_at_period_end":false,
			"current_period_end":1767225600,
			"items":{"data":[{"price":{"id":"price_premium_monthly"}}]}
		}]}`))
	}), lookup)

	details, err := client.GetSubscription(context.Background(), "acct_1")
	require.NoError(t, err)
	assert.Equal(t, types.SubStatusActive, details.Status)
	assert.Equal(t, "price_premium_monthly", details.PriceID)
	assert.False(t, details.CancelAtPeriodEnd)
	require.NotNil(t, details.CurrentPeriodEnd)
	assert.Equal(t, time.Unix(1767225600, 0).UTC(), *details.CurrentPeriodEnd)
}

func TestStripeClient_GetSubscription_NoneReturnsInactive(t *testing.T) {
	lookup := &fakeCustomerLookup{customerID: "cus_1"}
	client := newTestStripeClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	}), lookup)

	details, err := client.GetSubscription(context.Background(), "acct_1")
	require.NoError(t, err)
	assert.Equal(t, types.SubStatusInactive, details.Status)
	assert.Nil(t, details.CurrentPeriodEnd)
}

func TestStripeClient_SubscriptionStatus_NoCustomerIsInactive(t *testing.T) {
	// Never-checked-out account: no customer on file, so there is nothing to
	// ask Stripe about. That is a definitive free, not an upstream failure.
	lookup := &fakeCustomerLookup{email: "ana@example.com"}
	client := newTestStripeClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no Stripe call expected without a customer ID")
	}), lookup)

	details, err := client.SubscriptionStatus(context.Background(), "acct_1")
	require.NoError(t, err)
	assert.Equal(t, types.SubStatusInactive, details.Status)
}

func TestStripeClient_SubscriptionStatus_UpstreamErrorPropagates(t *testing.T) {
	lookup := &fakeCustomerLookup{customerID: "cus_1"}
	client := newTestStripeClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"type":"api_error","message":"boom"}}`))
	}), lookup)

	_, err := client.SubscriptionStatus(context.Background(), "acct_1")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeUpstreamUnavailable, appErr.Code)
}

func TestStripeClient_GetSubscription_RateLimited(t *testing.T) {
	lookup := &fakeCustomerLookup{customerID: "cus_1"}
	client := newTestStripeClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"type":"rate_limit_error","message":"too many requests"}}`))
	}), lookup)

	_, err := client.GetSubscription(context.Background(), "acct_1")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeUpstreamRateLimited, appErr.Code)
}
