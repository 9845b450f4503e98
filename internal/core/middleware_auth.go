package core

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"voyage/internal/types"
)

// authPublicPaths lists exact URL paths exempt from authentication.
var authPublicPaths = map[string]bool{
	"/health":           true,
	"/v1/auth/register": true,
	"/v1/auth/login":    true,
	"/v1/webhooks/stripe": true,
}

// authPublicPrefixes lists path prefixes exempt from authentication.
// Shared voyage views are public by token.
var authPublicPrefixes = []string{
	"/v1/shared/",
}

// AuthMiddleware resolves the Authorization bearer token to an Actor and
// injects it into the request context.
//
// Failures return 401 with distinct error codes:
//   - auth_token_missing:   no Authorization header or empty bearer token
//   - auth_token_invalid:   token is malformed, not found, or revoked
//   - auth_session_expired: session exists but has expired
//
// If no Authenticator is configured (tests), the middleware passes through.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Authenticator == nil {
			next.ServeHTTP(w, r)
			return
		}

		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenMissing, "Authorization header is required")
			return
		}

		token := extractBearerToken(authHeader)
		if token == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenMissing, "Bearer token is required")
			return
		}

		actor, err := s.Authenticator.Authenticate(r.Context(), token)
		if err != nil {
			s.handleAuthError(w, r, err)
			return
		}

		ctx := types.WithActor(r.Context(), actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// isPublicPath reports whether a request path bypasses authentication.
func isPublicPath(path string) bool {
	if authPublicPaths[path] {
		return true
	}
	for _, prefix := range authPublicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// extractBearerToken parses the Authorization header value and returns the
// token string. It expects "Bearer <token>" (case-insensitive scheme per
// RFC 7235). Returns empty string if the format is invalid.
func extractBearerToken(authHeader string) string {
	const prefix = "Bearer "
	if len(authHeader) < len(prefix) {
		return ""
	}
	if !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(prefix):])
}

// handleAuthError inspects the error from the Authenticator and writes the
// appropriate 401 response without leaking internal details.
func (s *Server) handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case types.ErrCodeAuthSessionExpired:
			s.Logger.Warn("authentication failed: session expired",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			s.writeAuthError(w, r, types.ErrCodeAuthSessionExpired, "Session has expired")
			return
		case types.ErrCodeAuthTokenInvalid, types.ErrCodeAuthTokenMissing:
			s.Logger.Warn("authentication failed: token rejected",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("error_code", string(appErr.Code)),
			)
			s.writeAuthError(w, r, appErr.Code, "Invalid authentication token")
			return
		}
	}

	s.Logger.Error("authentication failed: unexpected error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "Authentication failed")
}

// writeAuthError writes a 401 Unauthorized JSON response.
func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, code types.ErrorCode, message string) {
	resp := APIErrorResponse{
		Error: ErrorDetail{
			Code:      string(code),
			Message:   message,
			RequestID: types.GetRequestID(r.Context()),
		},
	}
	JSON(w, r, http.StatusUnauthorized, resp)
}
