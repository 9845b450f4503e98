package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"voyage/internal/core"
	"voyage/internal/entitlement"
	"voyage/internal/types"
)

// PinStore is the data access contract for pinned map locations.
type PinStore interface {
	Create(ctx context.Context, pin *types.PinnedLocation) error
	ListByOwner(ctx context.Context, ownerID string) ([]types.PinnedLocation, error)
	CountByOwner(ctx context.Context, ownerID string) (int, error)
	Delete(ctx context.Context, id, ownerID string) error
}

// PinVoyageChecker verifies the target voyage exists and belongs to the
// caller before a pin is attached to it.
type PinVoyageChecker interface {
	GetByID(ctx context.Context, id, ownerID string) (*types.Voyage, error)
}

// CreatePinRequest is the request body for POST /v1/pins.
type CreatePinRequest struct {
	VoyageID  string  `json:"voyage_id" validate:"required"`
	Label     string  `json:"label" validate:"required,max=120"`
	Latitude  float64 `json:"latitude" validate:"latitude"`
	Longitude float64 `json:"longitude" validate:"longitude"`
}

// PinHandler manages pinned map locations. Creation is gated by the tier's
// pin quota; premium is unbounded.
type PinHandler struct {
	pins        PinStore
	voyages     PinVoyageChecker
	entitlement EntitlementSource
	denials     DenialRecorder
	validator   *core.Validator
	logger      *slog.Logger
}

// NewPinHandler creates a PinHandler with the provided dependencies.
func NewPinHandler(
	pins PinStore,
	voyages PinVoyageChecker,
	ent EntitlementSource,
	denials DenialRecorder,
	v *core.Validator,
	l *slog.Logger,
) *PinHandler {
	if l == nil {
		l = slog.Default()
	}
	return &PinHandler{
		pins:        pins,
		voyages:     voyages,
		entitlement: ent,
		denials:     denials,
		validator:   v,
		logger:      l,
	}
}

// RegisterRoutes mounts pin routes on the provided chi.Router.
func (h *PinHandler) RegisterRoutes(r chi.Router) {
	r.Route("/pins", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Delete("/{id}", h.Delete)
	})
}

// Create handles POST /v1/pins.
func (h *PinHandler) Create(w http.ResponseWriter, r *http.Request) {
	accountID := types.AccountID(r.Context())
	if accountID == "" {
		core.Error(w, r, types.ErrNotAuthenticated())
		return
	}

	var req CreatePinRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	if _, err := h.voyages.GetByID(r.Context(), req.VoyageID, accountID); err != nil {
		core.Error(w, r, err)
		return
	}

	ent, err := h.entitlement.Snapshot(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	current, err := h.pins.CountByOwner(r.Context(), accountID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	decision := entitlement.CheckQuota(types.ResourcePins, current, 1, ent.Policy)
	if !decision.Allowed {
		if h.denials != nil {
			h.denials.RecordQuotaDenial(r.Context(), types.ResourcePins, ent.Tier)
		}
		core.Error(w, r, quotaError(types.ResourcePins, decision, ent.Tier))
		return
	}

	pin := &types.PinnedLocation{
		ID:        uuid.NewString(),
		VoyageID:  req.VoyageID,
		OwnerID:   accountID,
		Label:     req.Label,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		CreatedAt: time.Now().UTC(),
	}

	if err := h.pins.Create(r.Context(), pin); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: pin})
}

// List handles GET /v1/pins.
func (h *PinHandler) List(w http.ResponseWriter, r *http.Request) {
	accountID := types.AccountID(r.Context())
	if accountID == "" {
		core.Error(w, r, types.ErrNotAuthenticated())
		return
	}

	pins, err := h.pins.ListByOwner(r.Context(), accountID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: pins})
}

// Delete handles DELETE /v1/pins/{id}.
func (h *PinHandler) Delete(w http.ResponseWriter, r *http.Request) {
	accountID := types.AccountID(r.Context())
	if accountID == "" {
		core.Error(w, r, types.ErrNotAuthenticated())
		return
	}

	if err := h.pins.Delete(r.Context(), chi.URLParam(r, "id"), accountID); err != nil {
		core.Error(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
