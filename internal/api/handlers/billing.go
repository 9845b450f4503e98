package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"voyage/internal/core"
	"voyage/internal/types"
)

// BillingProvider is the payment provider contract the billing handler
// depends on. Mirrors the concrete external.StripeClient methods used.
type BillingProvider interface {
	CreateCheckoutSession(ctx context.Context, accountID string, urls types.RedirectURLs) (checkoutURL, sessionID string, err error)
	CreatePortalSession(ctx context.Context, accountID, returnURL string) (portalURL string, err error)
	GetSubscription(ctx context.Context, accountID string) (*types.SubscriptionDetails, error)
}

// EntitlementRefresher re-derives the session's entitlement. Called after
// the user returns from checkout so the new tier applies without re-login.
type EntitlementRefresher interface {
	Refresh(ctx context.Context) (types.ResolvedEntitlement, error)
}

// CheckoutSessionResponse is returned by POST /v1/billing/checkout-session.
type CheckoutSessionResponse struct {
	CheckoutURL string `json:"checkout_url"`
	SessionID   string `json:"session_id"`
}

// PortalSessionResponse is returned by POST /v1/billing/portal-session.
type PortalSessionResponse struct {
	PortalURL string `json:"portal_url"`
}

// BillingHandler serves checkout, portal, and subscription inspection.
// Redirect URLs are server-controlled, derived from the configured app URL;
// clients cannot steer the post-checkout redirect.
type BillingHandler struct {
	provider    BillingProvider
	entitlement EntitlementRefresher
	appURL      string
	logger      *slog.Logger
}

// NewBillingHandler creates a BillingHandler with the provided dependencies.
func NewBillingHandler(provider BillingProvider, ent EntitlementRefresher, appURL string, l *slog.Logger) *BillingHandler {
	if l == nil {
		l = slog.Default()
	}
	return &BillingHandler{
		provider:    provider,
		entitlement: ent,
		appURL:      appURL,
		logger:      l,
	}
}

// RegisterRoutes mounts billing routes on the provided chi.Router.
func (h *BillingHandler) RegisterRoutes(r chi.Router) {
	r.Route("/billing", func(r chi.Router) {
		r.Post("/checkout-session", h.CreateCheckoutSession)
		r.Post("/portal-session", h.CreatePortalSession)
		r.Get("/subscription", h.GetSubscription)
		r.Post("/refresh", h.RefreshEntitlement)
	})
}

// CreateCheckoutSession handles POST /v1/billing/checkout-session.
func (h *BillingHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	accountID := types.AccountID(r.Context())
	if accountID == "" {
		core.Error(w, r, types.ErrNotAuthenticated())
		return
	}

	urls := types.RedirectURLs{
		Success: h.appURL + "/billing/success?session_id={CHECKOUT_SESSION_ID}",
		Cancel:  h.appURL + "/billing/cancelled",
	}

	checkoutURL, sessionID, err := h.provider.CreateCheckoutSession(r.Context(), accountID, urls)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "checkout session created",
		"account_id", accountID,
		"session_id", sessionID,
	)

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: CheckoutSessionResponse{
		CheckoutURL: checkoutURL,
		SessionID:   sessionID,
	}})
}

// CreatePortalSession handles POST /v1/billing/portal-session.
func (h *BillingHandler) CreatePortalSession(w http.ResponseWriter, r *http.Request) {
	accountID := types.AccountID(r.Context())
	if accountID == "" {
		core.Error(w, r, types.ErrNotAuthenticated())
		return
	}

	portalURL, err := h.provider.CreatePortalSession(r.Context(), accountID, h.appURL+"/settings/billing")
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: PortalSessionResponse{PortalURL: portalURL}})
}

// GetSubscription handles GET /v1/billing/subscription. Returns the
// provider-side view; accounts that never checked out report an inactive
// status rather than an error.
func (h *BillingHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	accountID := types.AccountID(r.Context())
	if accountID == "" {
		core.Error(w, r, types.ErrNotAuthenticated())
		return
	}

	details, err := h.provider.GetSubscription(r.Context(), accountID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	// Clients poll this route on checkout return; re-derive the cached
	// entitlement opportunistically so the tier change lands with it.
	if _, err := h.entitlement.Refresh(r.Context()); err != nil {
		h.logger.WarnContext(r.Context(), "opportunistic entitlement refresh failed", "error", err)
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: details})
}

// RefreshEntitlement handles POST /v1/billing/refresh. The client calls
// this on the post-checkout return page; concurrent calls collapse onto one
// in-flight resolution and the newest result wins.
func (h *BillingHandler) RefreshEntitlement(w http.ResponseWriter, r *http.Request) {
	ent, err := h.entitlement.Refresh(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: ent})
}
