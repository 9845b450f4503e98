// Package handlers contains the HTTP handler implementations for the Voyage API.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"voyage/internal/core"
	"voyage/internal/types"
)

// AuthService is the account lifecycle contract the auth handler depends on.
// Mirrors the concrete auth.Service methods used here.
type AuthService interface {
	Register(ctx context.Context, email, password, displayName, ip, userAgent string) (*types.Profile, string, error)
	Login(ctx context.Context, email, password, ip, userAgent string) (*types.Profile, string, error)
	Logout(ctx context.Context, rawToken string) error
}

// SessionInvalidator clears one account's cached derived state on login
// and logout. The entitlement resolver implements this.
type SessionInvalidator interface {
	Invalidate(accountID string)
}

// RegisterRequest is the request body for POST /v1/auth/register.
type RegisterRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8,max=128"`
	DisplayName string `json:"display_name,omitempty" validate:"max=100"`
}

// LoginRequest is the request body for POST /v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse is returned by register and login: the profile plus the raw
// session token. The token is shown exactly once; only its hash is stored.
type AuthResponse struct {
	Profile *types.Profile `json:"profile"`
	Token   string         `json:"token"`
}

// AuthHandler serves account registration, login, and logout.
type AuthHandler struct {
	service     AuthService
	invalidator SessionInvalidator
	validator   *core.Validator
	logger      *slog.Logger
}

// NewAuthHandler creates an AuthHandler with the provided dependencies.
func NewAuthHandler(service AuthService, invalidator SessionInvalidator, v *core.Validator, l *slog.Logger) *AuthHandler {
	if l == nil {
		l = slog.Default()
	}
	return &AuthHandler{
		service:     service,
		invalidator: invalidator,
		validator:   v,
		logger:      l,
	}
}

// RegisterRoutes mounts auth routes on the provided chi.Router.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
	})
}

// Register handles POST /v1/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	profile, token, err := h.service.Register(r.Context(), req.Email, req.Password, req.DisplayName, clientIP(r), r.UserAgent())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "account registered", "account_id", profile.ID)
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: AuthResponse{Profile: profile, Token: token}})
}

// Login handles POST /v1/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	profile, token, err := h.service.Login(r.Context(), req.Email, req.Password, clientIP(r), r.UserAgent())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	// Sign-in is a refresh trigger: drop this account's cached entitlement
	// so the first gated request re-derives the tier for this session.
	if h.invalidator != nil {
		h.invalidator.Invalidate(profile.ID)
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: AuthResponse{Profile: profile, Token: token}})
}

// Logout handles POST /v1/auth/logout. Revokes the presented session token
// and drops the account's cached entitlement so its next session derives
// fresh.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Authentication required", nil))
		return
	}

	if err := h.service.Logout(r.Context(), token); err != nil {
		core.Error(w, r, err)
		return
	}
	if h.invalidator != nil {
		h.invalidator.Invalidate(types.AccountID(r.Context()))
	}

	w.WriteHeader(http.StatusNoContent)
}

// clientIP returns the requesting client's IP, honoring the standard proxy
// header when present.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}

// bearerToken extracts the raw bearer token from the Authorization header,
// or "" when absent.
func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) <= len(prefix) {
		return ""
	}
	return auth[len(prefix):]
}
