package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"voyage/internal/core"
	"voyage/internal/entitlement"
	"voyage/internal/types"
)

// ShareStore is the data access contract for share links.
type ShareStore interface {
	Create(ctx context.Context, link *types.ShareLink) (*types.ShareLink, error)
	GetByToken(ctx context.Context, token string) (*types.ShareLink, error)
	DeleteByVoyage(ctx context.Context, voyageID, ownerID string) error
}

// ShareVoyageStore provides the voyage reads the share handler needs: an
// owner-scoped read when creating a link, and an ownerless public read when
// serving one.
type ShareVoyageStore interface {
	GetByID(ctx context.Context, id, ownerID string) (*types.Voyage, error)
	GetPublicByID(ctx context.Context, id string) (*types.Voyage, error)
}

// ShareTokenGenerator mints unguessable share tokens. The auth package's
// crypto token generator implements this.
type ShareTokenGenerator interface {
	GenerateToken() (string, error)
}

// SharedVoyageView is the public projection of a shared voyage. Owner
// identifiers and internal timestamps are stripped.
type SharedVoyageView struct {
	Title     string       `json:"title"`
	Location  string       `json:"location"`
	Latitude  *float64     `json:"latitude,omitempty"`
	Longitude *float64     `json:"longitude,omitempty"`
	StartDate time.Time    `json:"start_date"`
	EndDate   time.Time    `json:"end_date"`
	Rating    types.Rating `json:"rating"`
	Notes     string       `json:"notes,omitempty"`
	ImageURLs []string     `json:"image_urls"`
}

// ShareResponse is returned when a share link is created.
type ShareResponse struct {
	Token    string `json:"token"`
	ShareURL string `json:"share_url"`
}

// ShareHandler creates and serves public share links. Creation is gated by
// the social-share policy flag; viewing a link is unauthenticated.
type ShareHandler struct {
	shares      ShareStore
	voyages     ShareVoyageStore
	tokens      ShareTokenGenerator
	entitlement EntitlementRefresher
	denials     DenialRecorder
	appURL      string
	logger      *slog.Logger
}

// NewShareHandler creates a ShareHandler with the provided dependencies.
func NewShareHandler(
	shares ShareStore,
	voyages ShareVoyageStore,
	tokens ShareTokenGenerator,
	ent EntitlementRefresher,
	denials DenialRecorder,
	appURL string,
	l *slog.Logger,
) *ShareHandler {
	if l == nil {
		l = slog.Default()
	}
	return &ShareHandler{
		shares:      shares,
		voyages:     voyages,
		tokens:      tokens,
		entitlement: ent,
		denials:     denials,
		appURL:      appURL,
		logger:      l,
	}
}

// RegisterRoutes mounts share routes on the provided chi.Router. The
// /shared/{token} route is public; the auth middleware skips it.
func (h *ShareHandler) RegisterRoutes(r chi.Router) {
	r.Post("/voyages/{id}/share", h.CreateShare)
	r.Delete("/voyages/{id}/share", h.RevokeShare)
	r.Get("/shared/{token}", h.ViewShared)
}

// CreateShare handles POST /v1/voyages/{id}/share.
func (h *ShareHandler) CreateShare(w http.ResponseWriter, r *http.Request) {
	accountID := types.AccountID(r.Context())
	if accountID == "" {
		core.Error(w, r, types.ErrNotAuthenticated())
		return
	}

	// Premium-gated entry point: re-derive rather than trust the cache.
	ent, err := h.entitlement.Refresh(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	decision := entitlement.CheckQuota(types.ResourceSocialShare, 0, 0, ent.Policy)
	if !decision.Allowed {
		if h.denials != nil {
			h.denials.RecordQuotaDenial(r.Context(), types.ResourceSocialShare, ent.Tier)
		}
		core.Error(w, r, quotaError(types.ResourceSocialShare, decision, ent.Tier))
		return
	}

	voyage, err := h.voyages.GetByID(r.Context(), chi.URLParam(r, "id"), accountID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	token, err := h.tokens.GenerateToken()
	if err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to generate share token", err))
		return
	}

	link, err := h.shares.Create(r.Context(), &types.ShareLink{
		Token:     token,
		VoyageID:  voyage.ID,
		OwnerID:   accountID,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "share link created",
		"voyage_id", voyage.ID,
		"account_id", accountID,
	)

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: ShareResponse{
		Token:    link.Token,
		ShareURL: h.appURL + "/shared/" + link.Token,
	}})
}

// RevokeShare handles DELETE /v1/voyages/{id}/share. Removes every link for
// the voyage; idempotent.
func (h *ShareHandler) RevokeShare(w http.ResponseWriter, r *http.Request) {
	accountID := types.AccountID(r.Context())
	if accountID == "" {
		core.Error(w, r, types.ErrNotAuthenticated())
		return
	}

	if err := h.shares.DeleteByVoyage(r.Context(), chi.URLParam(r, "id"), accountID); err != nil {
		core.Error(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ViewShared handles GET /v1/shared/{token}. Public: no session required.
// A revoked link and a deleted voyage both present as not found.
func (h *ShareHandler) ViewShared(w http.ResponseWriter, r *http.Request) {
	link, err := h.shares.GetByToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	voyage, err := h.voyages.GetPublicByID(r.Context(), link.VoyageID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: SharedVoyageView{
		Title:     voyage.Title,
		Location:  voyage.Location,
		Latitude:  voyage.Latitude,
		Longitude: voyage.Longitude,
		StartDate: voyage.StartDate,
		EndDate:   voyage.EndDate,
		Rating:    voyage.Rating,
		Notes:     voyage.Notes,
		ImageURLs: voyage.ImageURLs,
	}})
}
