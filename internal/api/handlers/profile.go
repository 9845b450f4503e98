package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"voyage/internal/core"
	"voyage/internal/types"
)

// ProfileStore is the data access contract for account profiles.
type ProfileStore interface {
	GetByID(ctx context.Context, id string) (*types.Profile, error)
	Update(ctx context.Context, profile *types.Profile) error
}

// UpdateProfileRequest is the request body for PATCH /v1/profile. Absent
// fields are left unchanged; an empty string clears the field.
type UpdateProfileRequest struct {
	DisplayName *string `json:"display_name,omitempty" validate:"omitempty,max=100"`
	AvatarURL   *string `json:"avatar_url,omitempty" validate:"omitempty,max=2048"`
}

// AvatarUploadRequest is the request body for POST /v1/profile/avatar.
type AvatarUploadRequest struct {
	ContentType string `json:"content_type" validate:"required"`
	SizeBytes   int64  `json:"size_bytes" validate:"required,min=1"`
}

// avatarUploadScope is the object-path segment avatar uploads are issued
// under, in place of a voyage ID.
const avatarUploadScope = "avatar"

// ProfileHandler serves the account's own profile: read, display-name and
// avatar updates. Avatars use the same presigned-upload flow as voyage
// photos; the client uploads directly to storage and then records the
// resulting URL with a PATCH.
type ProfileHandler struct {
	profiles  ProfileStore
	photos    PhotoIssuer
	validator *core.Validator
	logger    *slog.Logger
}

// NewProfileHandler creates a ProfileHandler with the provided dependencies.
func NewProfileHandler(profiles ProfileStore, photos PhotoIssuer, v *core.Validator, l *slog.Logger) *ProfileHandler {
	if l == nil {
		l = slog.Default()
	}
	return &ProfileHandler{
		profiles:  profiles,
		photos:    photos,
		validator: v,
		logger:    l,
	}
}

// RegisterRoutes mounts profile routes on the provided chi.Router.
func (h *ProfileHandler) RegisterRoutes(r chi.Router) {
	r.Route("/profile", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Patch("/", h.Update)
		r.Post("/avatar", h.AvatarUploadURL)
	})
}

// Get handles GET /v1/profile.
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	accountID := types.AccountID(r.Context())
	if accountID == "" {
		core.Error(w, r, types.ErrNotAuthenticated())
		return
	}

	profile, err := h.profiles.GetByID(r.Context(), accountID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: profile})
}

// Update handles PATCH /v1/profile.
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	accountID := types.AccountID(r.Context())
	if accountID == "" {
		core.Error(w, r, types.ErrNotAuthenticated())
		return
	}

	var req UpdateProfileRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	profile, err := h.profiles.GetByID(r.Context(), accountID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if req.DisplayName != nil {
		profile.DisplayName = *req.DisplayName
	}
	if req.AvatarURL != nil {
		profile.AvatarURL = *req.AvatarURL
	}

	if err := h.profiles.Update(r.Context(), profile); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "profile updated", "account_id", accountID)
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: profile})
}

// AvatarUploadURL handles POST /v1/profile/avatar: issues a presigned PUT
// URL for the avatar image. The upload itself goes straight to storage.
func (h *ProfileHandler) AvatarUploadURL(w http.ResponseWriter, r *http.Request) {
	accountID := types.AccountID(r.Context())
	if accountID == "" {
		core.Error(w, r, types.ErrNotAuthenticated())
		return
	}

	var req AvatarUploadRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	ticket, err := h.photos.IssueUploadURL(r.Context(), accountID, avatarUploadScope, req.ContentType, req.SizeBytes)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: ticket})
}
