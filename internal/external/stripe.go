package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"voyage/internal/types"

	stripe "github.com/stripe/stripe-go/v82"
)

// stripeAPIBase is the default Stripe API base URL.
// Overridable in tests via StripeClientConfig.BaseURL.
const stripeAPIBase = "https://api.stripe.com"

// CustomerLookup provides the minimal data access needed by StripeClient to
// resolve an account into its Stripe customer ID and billing email. This
// avoids pulling in the full ProfileRepository interface.
type CustomerLookup interface {
	// GetBillingInfo returns the stripe_customer_id and email for the account.
	// Returns ("", email, nil) if the account exists but has no customer yet.
	GetBillingInfo(ctx context.Context, accountID string) (stripeCustomerID string, email string, err error)

	// SetStripeCustomerID records the customer created for the account.
	SetStripeCustomerID(ctx context.Context, accountID string, customerID string) error
}

// StripeClientConfig holds the configuration for creating a StripeClient.
type StripeClientConfig struct {
	SecretKey      string
	PremiumPriceID string
	BaseURL        string // Override for testing; defaults to stripeAPIBase
	Logger         *slog.Logger
}

// StripeClient makes direct HTTP calls to the Stripe REST API through
// BaseClient, so all requests inherit the resilience infrastructure
// (circuit breaker, retries, error mapping) and tests can use httptest.
//
// It is also the entitlement resolver's primary source: SubscriptionStatus
// satisfies the resolver's SubscriptionChecker interface.
type StripeClient struct {
	base           *BaseClient
	secretKey      string
	premiumPriceID string
	baseURL        string
	customers      CustomerLookup
	logger         *slog.Logger
}

// NewStripeClient creates a new StripeClient.
func NewStripeClient(
	httpClient *http.Client,
	customers CustomerLookup,
	cfg StripeClientConfig,
) *StripeClient {
	base := NewBaseClient(
		httpClient,
		"stripe",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"Voyage/1.0",
	)
	return NewStripeClientWithBase(base, customers, cfg)
}

// NewStripeClientWithBase creates a StripeClient with a pre-configured
// BaseClient. Useful for testing when the BaseClient needs custom settings.
func NewStripeClientWithBase(
	base *BaseClient,
	customers CustomerLookup,
	cfg StripeClientConfig,
) *StripeClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &StripeClient{
		base:           base,
		secretKey:      cfg.SecretKey,
		premiumPriceID: cfg.PremiumPriceID,
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		customers:      customers,
		logger:         logger,
	}
}

// ---------------------------------------------------------------------------
// Billing Operations
// ---------------------------------------------------------------------------

// EnsureCustomer retrieves or creates the Stripe customer for an account.
// Search-first to prevent duplicate customers:
//  1. Query the Stripe Search API for a metadata['account_id'] match
//  2. If found, persist and return the existing customer ID
//  3. Otherwise create a new customer with account_id metadata
//  4. Persist the customer ID on the profile
func (s *StripeClient) EnsureCustomer(ctx context.Context, accountID string, email string) (string, error) {
	searchQuery := fmt.Sprintf("metadata['account_id']:'%s'", accountID)
	params := url.Values{}
	params.Set("query", searchQuery)

	searchResp, err := s.doGet(ctx, "/v1/customers/search", params)
	if err != nil {
		return "", s.wrapStripeError("EnsureCustomer.search", err)
	}
	defer searchResp.Body.Close()

	if searchResp.StatusCode != http.StatusOK {
		return "", s.handleErrorResponse(searchResp, "EnsureCustomer.search")
	}

	var searchResult stripeSearchResult
	if err := json.NewDecoder(searchResp.Body).Decode(&searchResult); err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Stripe customer search response",
			err,
		)
	}

	if len(searchResult.Data) > 0 {
		customerID := searchResult.Data[0].ID
		if dbErr := s.customers.SetStripeCustomerID(ctx, accountID, customerID); dbErr != nil {
			s.logger.WarnContext(ctx, "failed to persist stripe customer id",
				"account_id", accountID,
				"customer_id", customerID,
				"error", dbErr,
			)
		}
		return customerID, nil
	}

	createParams := url.Values{}
	createParams.Set("email", email)
	createParams.Set("metadata[account_id]", accountID)

	createResp, err := s.doPost(ctx, "/v1/customers", createParams)
	if err != nil {
		return "", s.wrapStripeError("EnsureCustomer.create", err)
	}
	defer createResp.Body.Close()

	if createResp.StatusCode != http.StatusOK {
		return "", s.handleErrorResponse(createResp, "EnsureCustomer.create")
	}

	var customer stripeCustomer
	if err := json.NewDecoder(createResp.Body).Decode(&customer); err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Stripe customer creation response",
			err,
		)
	}

	if dbErr := s.customers.SetStripeCustomerID(ctx, accountID, customer.ID); dbErr != nil {
		s.logger.WarnContext(ctx, "failed to persist stripe customer id after creation",
			"account_id", accountID,
			"customer_id", customer.ID,
			"error", dbErr,
		)
	}

	return customer.ID, nil
}

// CreateCheckoutSession generates a Stripe Checkout Session URL for the
// premium subscription. Sets client_reference_id to the account ID for
// webhook correlation.
func (s *StripeClient) CreateCheckoutSession(
	ctx context.Context,
	accountID string,
	urls types.RedirectURLs,
) (checkoutURL string, sessionID string, err error) {
	customerID, email, err := s.customers.GetBillingInfo(ctx, accountID)
	if err != nil {
		return "", "", err
	}
	if customerID == "" {
		customerID, err = s.EnsureCustomer(ctx, accountID, email)
		if err != nil {
			return "", "", err
		}
	}

	params := url.Values{}
	params.Set("customer", customerID)
	params.Set("mode", "subscription")
	params.Set("client_reference_id", accountID)
	params.Set("success_url", urls.Success)
	params.Set("cancel_url", urls.Cancel)
	params.Set("metadata[account_id]", accountID)
	params.Set("line_items[0][price]", s.premiumPriceID)
	params.Set("line_items[0][quantity]", "1")

	resp, err := s.doPost(ctx, "/v1/checkout/sessions", params)
	if err != nil {
		return "", "", s.wrapStripeError("CreateCheckoutSession", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", s.handleErrorResponse(resp, "CreateCheckoutSession")
	}

	var session stripeCheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return "", "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Stripe checkout session response",
			err,
		)
	}

	return session.URL, session.ID, nil
}

// CreatePortalSession generates a Stripe Billing Portal URL where the user
// manages or cancels their subscription.
func (s *StripeClient) CreatePortalSession(
	ctx context.Context,
	accountID string,
	returnURL string,
) (portalURL string, err error) {
	customerID, err := s.resolveCustomerID(ctx, accountID)
	if err != nil {
		return "", err
	}

	params := url.Values{}
	params.Set("customer", customerID)
	params.Set("return_url", returnURL)

	resp, err := s.doPost(ctx, "/v1/billing_portal/sessions", params)
	if err != nil {
		return "", s.wrapStripeError("CreatePortalSession", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", s.handleErrorResponse(resp, "CreatePortalSession")
	}

	var session stripePortalSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Stripe portal session response",
			err,
		)
	}

	return session.URL, nil
}

// GetSubscription retrieves the current subscription details for an account
// directly from Stripe. An account with no subscription on file returns
// details with SubStatusInactive, not an error.
func (s *StripeClient) GetSubscription(ctx context.Context, accountID string) (*types.SubscriptionDetails, error) {
	customerID, err := s.resolveCustomerID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	queryParams := url.Values{}
	queryParams.Set("customer", customerID)
	queryParams.Set("limit", "1")

	resp, err := s.doGet(ctx, "/v1/subscriptions", queryParams)
	if err != nil {
		return nil, s.wrapStripeError("GetSubscription", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.handleErrorResponse(resp, "GetSubscription")
	}

	var listResp stripeSubscriptionList
	if err := json.NewDecoder(resp.Body).Decode(&listResp); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Stripe subscriptions response",
			err,
		)
	}

	if len(listResp.Data) == 0 {
		return &types.SubscriptionDetails{Status: types.SubStatusInactive}, nil
	}

	return mapStripeSubscription(&listResp.Data[0]), nil
}

// SubscriptionStatus implements the entitlement resolver's primary check.
// An account that never started checkout has no Stripe customer; that is a
// definitive "not subscribed", not an outage, so it returns inactive rather
// than an error and the resolver does not need the fallback path.
func (s *StripeClient) SubscriptionStatus(ctx context.Context, accountID string) (*types.SubscriptionDetails, error) {
	details, err := s.GetSubscription(ctx, accountID)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundProfile {
			return &types.SubscriptionDetails{Status: types.SubStatusInactive}, nil
		}
		return nil, err
	}
	return details, nil
}

// ---------------------------------------------------------------------------
// HTTP Helpers
// ---------------------------------------------------------------------------

// doGet performs an authenticated GET request to the Stripe API.
func (s *StripeClient) doGet(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	reqURL := s.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	s.setAuthHeaders(req)

	return s.base.Do(req)
}

// doPost performs an authenticated POST request to the Stripe API with
// form-encoded body.
func (s *StripeClient) doPost(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	reqURL := s.baseURL + path
	body := params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	s.setAuthHeaders(req)

	return s.base.Do(req)
}

// setAuthHeaders sets the Stripe API authentication and version headers.
func (s *StripeClient) setAuthHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Stripe-Version", stripe.APIVersion)
}

// resolveCustomerID fetches the Stripe customer ID for the account.
func (s *StripeClient) resolveCustomerID(ctx context.Context, accountID string) (string, error) {
	customerID, _, err := s.customers.GetBillingInfo(ctx, accountID)
	if err != nil {
		return "", err
	}
	if customerID == "" {
		return "", types.NewAppError(
			types.ErrCodeNotFoundProfile,
			fmt.Sprintf("account %s has no Stripe customer ID", accountID),
			nil,
		)
	}
	return customerID, nil
}

// ---------------------------------------------------------------------------
// Error Handling
// ---------------------------------------------------------------------------

// stripeErrorResponse represents the JSON error body returned by the Stripe API.
type stripeErrorResponse struct {
	Error stripeErrorBody `json:"error"`
}

type stripeErrorBody struct {
	Type        string `json:"type"`
	Code        string `json:"code"`
	DeclineCode string `json:"decline_code"`
	Message     string `json:"message"`
	Param       string `json:"param"`
	DocURL      string `json:"doc_url"`
}

// handleErrorResponse reads a Stripe error response and maps it to a
// types.AppError.
func (s *StripeClient) handleErrorResponse(resp *http.Response, operation string) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned status %d and response body was unreadable", operation, resp.StatusCode),
			readErr,
		)
	}

	var stripeErr stripeErrorResponse
	if jsonErr := json.Unmarshal(body, &stripeErr); jsonErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned status %d with non-JSON body", operation, resp.StatusCode),
			jsonErr,
		)
	}

	return s.mapStripeError(operation, resp.StatusCode, &stripeErr.Error)
}

// mapStripeError translates a Stripe error into a types.AppError.
func (s *StripeClient) mapStripeError(operation string, statusCode int, stripeErr *stripeErrorBody) error {
	if stripeErr.Code == "card_declined" || stripeErr.DeclineCode != "" {
		return types.NewAppErrorWithDetails(
			types.ErrCodePaymentDeclined,
			fmt.Sprintf("%s: payment declined: %s", operation, stripeErr.Message),
			nil,
			map[string]any{
				"decline_code": stripeErr.DeclineCode,
				"stripe_code":  stripeErr.Code,
			},
		)
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		return types.NewAppError(
			types.ErrCodeUpstreamRateLimited,
			fmt.Sprintf("%s: Stripe rate limit exceeded", operation),
			nil,
		)
	case statusCode >= 500:
		return types.NewAppError(
			types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("%s: Stripe server error: %s", operation, stripeErr.Message),
			nil,
		)
	case statusCode == http.StatusNotFound:
		return types.NewAppError(
			types.ErrCodeNotFoundProfile,
			fmt.Sprintf("%s: Stripe resource not found: %s", operation, stripeErr.Message),
			nil,
		)
	default:
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe error (%d): %s", operation, statusCode, stripeErr.Message),
			nil,
		)
	}
}

// wrapStripeError wraps a BaseClient transport error with context.
func (s *StripeClient) wrapStripeError(operation string, err error) error {
	// BaseClient errors (circuit breaker, retries exhausted) already carry
	// the right upstream error code.
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return types.NewAppError(
		types.ErrCodeUpstreamStripe,
		fmt.Sprintf("%s: Stripe request failed: %v", operation, err),
		err,
	)
}

// ---------------------------------------------------------------------------
// Stripe Response Types (for JSON deserialization)
// ---------------------------------------------------------------------------

type stripeCustomer struct {
	ID       string            `json:"id"`
	Email    string            `json:"email"`
	Metadata map[string]string `json:"metadata"`
}

type stripeSearchResult struct {
	Data    []stripeCustomer `json:"data"`
	HasMore bool             `json:"has_more"`
}

type stripeCheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type stripePortalSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type stripeSubscription struct {
	ID                string                  `json:"id"`
	Status            string                  `json:"status"`
	CancelAtPeriodEnd bool                    `json:"cancel_at_period_end"`
	CurrentPeriodEnd  int64                   `json:"current_period_end"`
	Items             stripeSubscriptionItems `json:"items"`
}

type stripeSubscriptionItems struct {
	Data []stripeSubscriptionItem `json:"data"`
}

type stripeSubscriptionItem struct {
	Price stripePrice `json:"price"`
}

type stripePrice struct {
	ID string `json:"id"`
}

type stripeSubscriptionList struct {
	Data    []stripeSubscription `json:"data"`
	HasMore bool                 `json:"has_more"`
}

// mapStripeSubscription converts a Stripe subscription to the domain
// types.SubscriptionDetails.
func mapStripeSubscription(sub *stripeSubscription) *types.SubscriptionDetails {
	details := &types.SubscriptionDetails{
		Status:            types.SubscriptionStatus(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.CurrentPeriodEnd > 0 {
		end := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		details.CurrentPeriodEnd = &end
	}
	if len(sub.Items.Data) > 0 {
		details.PriceID = sub.Items.Data[0].Price.ID
	}
	return details
}

// ---------------------------------------------------------------------------
// Webhook Verification
// ---------------------------------------------------------------------------

// StripeVerifier validates webhook payloads using stripe-go's signature
// verification: HMAC-SHA256 with timestamp tolerance.
type StripeVerifier struct{}

// Verify validates a Stripe webhook payload against the signature header
// and signing secret.
func (v *StripeVerifier) Verify(payload []byte, header string, secret string) error {
	return stripe.ValidatePayload(payload, header, secret)
}
