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
	"voyage/internal/storage"
	"voyage/internal/types"
)

// --- Service Interfaces ---
//
// Defined locally following the handler injection pattern established in
// auth.go and billing.go. Mirrors the concrete db repository methods used.

// VoyageStore is the data access contract for voyage operations.
type VoyageStore interface {
	Create(ctx context.Context, v *types.Voyage) error
	GetByID(ctx context.Context, id, ownerID string) (*types.Voyage, error)
	ListByOwner(ctx context.Context, ownerID string) ([]types.Voyage, error)
	CountByOwner(ctx context.Context, ownerID string) (int, error)
	Update(ctx context.Context, v *types.Voyage) error
	SetImageURLs(ctx context.Context, id, ownerID string, urls []string) error
	SoftDelete(ctx context.Context, id, ownerID string) error
}

// PhotoIssuer provisions presigned uploads and deletes stored photos.
type PhotoIssuer interface {
	IssueUploadURL(ctx context.Context, accountID, voyageID, contentType string, sizeBytes int64) (*storage.UploadTicket, error)
	DeletePhoto(ctx context.Context, photoURL string) error
}

// EntitlementSource supplies the current account's resolved tier and quota
// policy. The entitlement resolver implements this.
type EntitlementSource interface {
	Snapshot(ctx context.Context) (types.ResolvedEntitlement, error)
}

// DenialRecorder emits telemetry when a quota or feature gate denies an
// operation. Nil-safe at all call sites.
type DenialRecorder interface {
	RecordQuotaDenial(ctx context.Context, kind types.ResourceKind, tier types.PlanTier)
}

// --- Request/Response Models ---

// CreateVoyageRequest is the request body for POST /v1/voyages.
type CreateVoyageRequest struct {
	Title     string       `json:"title" validate:"required,max=200"`
	Location  string       `json:"location" validate:"required,max=200"`
	Latitude  *float64     `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude *float64     `json:"longitude,omitempty" validate:"omitempty,longitude"`
	StartDate time.Time    `json:"start_date" validate:"required"`
	EndDate   time.Time    `json:"end_date" validate:"required"`
	Rating    types.Rating `json:"rating" validate:"rating"`
	Notes     string       `json:"notes,omitempty" validate:"max=10000"`
}

// UpdateVoyageRequest is the request body for PATCH /v1/voyages/{id}.
// Pointer fields allow partial updates.
type UpdateVoyageRequest struct {
	Title     *string       `json:"title,omitempty" validate:"omitempty,max=200"`
	Location  *string       `json:"location,omitempty" validate:"omitempty,max=200"`
	Latitude  *float64      `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude *float64      `json:"longitude,omitempty" validate:"omitempty,longitude"`
	StartDate *time.Time    `json:"start_date,omitempty"`
	EndDate   *time.Time    `json:"end_date,omitempty"`
	Rating    *types.Rating `json:"rating,omitempty" validate:"omitempty,rating"`
	Notes     *string       `json:"notes,omitempty" validate:"omitempty,max=10000"`
}

// PhotoUploadItem describes one pending photo in a batch upload request.
type PhotoUploadItem struct {
	ContentType string `json:"content_type" validate:"required"`
	SizeBytes   int64  `json:"size_bytes" validate:"required,min=1"`
}

// PhotoUploadRequest is the request body for POST /v1/voyages/{id}/photos.
type PhotoUploadRequest struct {
	Photos []PhotoUploadItem `json:"photos" validate:"required,min=1,max=20,dive"`
}

// PhotoUploadResponse carries the issued tickets. When the per-entry image
// quota clips the batch, Accepted < Requested and only the leading accepted
// subset receives tickets.
type PhotoUploadResponse struct {
	Tickets   []storage.UploadTicket `json:"tickets"`
	Requested int                    `json:"requested"`
	Accepted  int                    `json:"accepted"`
}

// DeletePhotoRequest is the request body for DELETE /v1/voyages/{id}/photos.
type DeletePhotoRequest struct {
	PhotoURL string `json:"photo_url" validate:"required,url"`
}

// --- Handler ---

// VoyageHandler manages voyage CRUD and photo attachments. Mutations that
// add entries or photos consult the quota policy first and abort entirely
// on denial.
type VoyageHandler struct {
	voyages     VoyageStore
	photos      PhotoIssuer
	entitlement EntitlementSource
	denials     DenialRecorder
	validator   *core.Validator
	logger      *slog.Logger
}

// NewVoyageHandler creates a VoyageHandler with the provided dependencies.
func NewVoyageHandler(
	voyages VoyageStore,
	photos PhotoIssuer,
	ent EntitlementSource,
	denials DenialRecorder,
	v *core.Validator,
	l *slog.Logger,
) *VoyageHandler {
	if l == nil {
		l = slog.Default()
	}
	return &VoyageHandler{
		voyages:     voyages,
		photos:      photos,
		entitlement: ent,
		denials:     denials,
		validator:   v,
		logger:      l,
	}
}

// RegisterRoutes mounts voyage routes on the provided chi.Router.
func (h *VoyageHandler) RegisterRoutes(r chi.Router) {
	r.Route("/voyages", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Patch("/", h.Update)
			r.Delete("/", h.Delete)
			r.Post("/photos", h.AddPhotos)
			r.Delete("/photos", h.RemovePhoto)
		})
	})
}

// Create handles POST /v1/voyages.
//
// The entry quota is enforced before any write: the current entry count is
// read, the policy consulted, and the create aborted with a limit error when
// the tier's MaxEntries would be exceeded.
func (h *VoyageHandler) Create(w http.ResponseWriter, r *http.Request) {
	accountID := types.AccountID(r.Context())
	if accountID == "" {
		core.Error(w, r, types.ErrNotAuthenticated())
		return
	}

	var req CreateVoyageRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}
	if req.EndDate.Before(req.StartDate) {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidDates,
			"end_date must not be before start_date",
			nil,
		))
		return
	}

	ent, err := h.entitlement.Snapshot(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	current, err := h.voyages.CountByOwner(r.Context(), accountID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	decision := entitlement.CheckQuota(types.ResourceEntries, current, 1, ent.Policy)
	if !decision.Allowed {
		h.recordDenial(r.Context(), types.ResourceEntries, ent.Tier)
		core.Error(w, r, quotaError(types.ResourceEntries, decision, ent.Tier))
		return
	}

	now := time.Now().UTC()
	voyage := &types.Voyage{
		ID:        uuid.NewString(),
		OwnerID:   accountID,
		Title:     req.Title,
		Location:  req.Location,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Rating:    req.Rating,
		Notes:     req.Notes,
		ImageURLs: []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.voyages.Create(r.Context(), voyage); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: voyage})
}

// List handles GET /v1/voyages.
func (h *VoyageHandler) List(w http.ResponseWriter, r *http.Request) {
	accountID := types.AccountID(r.Context())
	if accountID == "" {
		core.Error(w, r, types.ErrNotAuthenticated())
		return
	}

	voyages, err := h.voyages.ListByOwner(r.Context(), accountID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: voyages})
}

// Get handles GET /v1/voyages/{id}.
func (h *VoyageHandler) Get(w http.ResponseWriter, r *http.Request) {
	accountID := types.AccountID(r.Context())
	if accountID == "" {
		core.Error(w, r, types.ErrNotAuthenticated())
		return
	}

	voyage, err := h.voyages.GetByID(r.Context(), chi.URLParam(r, "id"), accountID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: voyage})
}

// Update handles PATCH /v1/voyages/{id}. Partial update; date ordering is
// re-validated against the merged result.
func (h *VoyageHandler) Update(w http.ResponseWriter, r *http.Request) {
	accountID := types.AccountID(r.Context())
	if accountID == "" {
		core.Error(w, r, types.ErrNotAuthenticated())
		return
	}

	var req UpdateVoyageRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	voyage, err := h.voyages.GetByID(r.Context(), chi.URLParam(r, "id"), accountID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if req.Title != nil {
		voyage.Title = *req.Title
	}
	if req.Location != nil {
		voyage.Location = *req.Location
	}
	if req.Latitude != nil {
		voyage.Latitude = req.Latitude
	}
	if req.Longitude != nil {
		voyage.Longitude = req.Longitude
	}
	if req.StartDate != nil {
		voyage.StartDate = *req.StartDate
	}
	if req.EndDate != nil {
		voyage.EndDate = *req.EndDate
	}
	if req.Rating != nil {
		voyage.Rating = *req.Rating
	}
	if req.Notes != nil {
		voyage.Notes = *req.Notes
	}

	if voyage.EndDate.Before(voyage.StartDate) {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidDates,
			"end_date must not be before start_date",
			nil,
		))
		return
	}

	if err := h.voyages.Update(r.Context(), voyage); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: voyage})
}

// Delete handles DELETE /v1/voyages/{id}. Soft delete; photos stay in
// storage until a later cleanup.
func (h *VoyageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	accountID := types.AccountID(r.Context())
	if accountID == "" {
		core.Error(w, r, types.ErrNotAuthenticated())
		return
	}

	if err := h.voyages.SoftDelete(r.Context(), chi.URLParam(r, "id"), accountID); err != nil {
		core.Error(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AddPhotos handles POST /v1/voyages/{id}/photos.
//
// Multi-photo batches are clipped, not rejected: with one slot left under
// the per-entry image limit and five photos requested, the first photo gets
// a ticket and the rest are dropped. An entirely denied batch (zero slots)
// returns the image limit error.
func (h *VoyageHandler) AddPhotos(w http.ResponseWriter, r *http.Request) {
	accountID := types.AccountID(r.Context())
	if accountID == "" {
		core.Error(w, r, types.ErrNotAuthenticated())
		return
	}

	var req PhotoUploadRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	voyage, err := h.voyages.GetByID(r.Context(), chi.URLParam(r, "id"), accountID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	ent, err := h.entitlement.Snapshot(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	allowed := entitlement.ClipBatch(types.ResourceImages, len(voyage.ImageURLs), len(req.Photos), ent.Policy)
	if allowed == 0 {
		h.recordDenial(r.Context(), types.ResourceImages, ent.Tier)
		decision := entitlement.CheckQuota(types.ResourceImages, len(voyage.ImageURLs), 1, ent.Policy)
		core.Error(w, r, quotaError(types.ResourceImages, decision, ent.Tier))
		return
	}
	if allowed < len(req.Photos) {
		h.recordDenial(r.Context(), types.ResourceImages, ent.Tier)
		h.logger.InfoContext(r.Context(), "photo batch clipped",
			"voyage_id", voyage.ID,
			"requested", len(req.Photos),
			"accepted", allowed,
		)
	}

	tickets := make([]storage.UploadTicket, 0, allowed)
	urls := append([]string{}, voyage.ImageURLs...)
	for _, item := range req.Photos[:allowed] {
		ticket, err := h.photos.IssueUploadURL(r.Context(), accountID, voyage.ID, item.ContentType, item.SizeBytes)
		if err != nil {
			core.Error(w, r, err)
			return
		}
		tickets = append(tickets, *ticket)
		urls = append(urls, ticket.PhotoURL)
	}

	if err := h.voyages.SetImageURLs(r.Context(), voyage.ID, accountID, urls); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: PhotoUploadResponse{
		Tickets:   tickets,
		Requested: len(req.Photos),
		Accepted:  allowed,
	}})
}

// RemovePhoto handles DELETE /v1/voyages/{id}/photos. Detaches the URL from
// the voyage first, then deletes the object; a storage failure after detach
// is logged, not surfaced, since the journal is already consistent.
func (h *VoyageHandler) RemovePhoto(w http.ResponseWriter, r *http.Request) {
	accountID := types.AccountID(r.Context())
	if accountID == "" {
		core.Error(w, r, types.ErrNotAuthenticated())
		return
	}

	var req DeletePhotoRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	voyage, err := h.voyages.GetByID(r.Context(), chi.URLParam(r, "id"), accountID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	urls := make([]string, 0, len(voyage.ImageURLs))
	found := false
	for _, u := range voyage.ImageURLs {
		if u == req.PhotoURL {
			found = true
			continue
		}
		urls = append(urls, u)
	}
	if !found {
		core.Error(w, r, types.NewAppError(types.ErrCodeNotFoundVoyage, "photo is not attached to this voyage", nil))
		return
	}

	if err := h.voyages.SetImageURLs(r.Context(), voyage.ID, accountID, urls); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.photos.DeletePhoto(r.Context(), req.PhotoURL); err != nil {
		h.logger.WarnContext(r.Context(), "photo object deletion failed after detach",
			"voyage_id", voyage.ID,
			"error", err,
		)
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *VoyageHandler) recordDenial(ctx context.Context, kind types.ResourceKind, tier types.PlanTier) {
	if h.denials != nil {
		h.denials.RecordQuotaDenial(ctx, kind, tier)
	}
}

// quotaError converts a denied Decision into the API error for its resource
// kind, carrying the remaining allowance and tier for the client's upgrade
// prompt.
func quotaError(kind types.ResourceKind, decision types.Decision, tier types.PlanTier) error {
	return types.NewAppErrorWithDetails(
		entitlement.LimitErrorCode(kind, decision.Reason),
		limitMessage(kind),
		nil,
		map[string]any{
			"resource":  string(kind),
			"tier":      string(tier),
			"remaining": decision.Remaining,
		},
	)
}

func limitMessage(kind types.ResourceKind) string {
	switch kind {
	case types.ResourceEntries:
		return "voyage limit reached for your plan"
	case types.ResourceImages:
		return "photo limit reached for this voyage"
	case types.ResourcePins:
		return "pinned location limit reached for your plan"
	case types.ResourceDocumentExport:
		return "PDF export requires a premium plan"
	case types.ResourceSocialShare:
		return "social sharing is not available on your plan"
	}
	return "operation not permitted on your plan"
}
