package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
// All handlers MUST use these constants instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationMissingField ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidEmail ErrorCode = "validation_invalid_email"
	ErrCodeValidationInvalidLat   ErrorCode = "validation_invalid_latitude"
	ErrCodeValidationInvalidLon   ErrorCode = "validation_invalid_longitude"
	ErrCodeValidationInvalidDates ErrorCode = "validation_invalid_date_range"
	ErrCodeValidationInvalidRating ErrorCode = "validation_invalid_rating"

	// Auth (401)
	ErrCodeAuthNotAuthenticated ErrorCode = "auth_not_authenticated"
	ErrCodeAuthTokenMissing     ErrorCode = "auth_token_missing"
	ErrCodeAuthTokenInvalid     ErrorCode = "auth_token_invalid"
	ErrCodeAuthSessionExpired   ErrorCode = "auth_session_expired"
	ErrCodeAuthInvalidCreds     ErrorCode = "auth_invalid_credentials"

	// Limits / entitlement (403)
	ErrCodeLimitEntries       ErrorCode = "limit_entries_exceeded"
	ErrCodeLimitImages        ErrorCode = "limit_images_exceeded"
	ErrCodeLimitPins          ErrorCode = "limit_pins_exceeded"
	ErrCodeFeatureNotEntitled ErrorCode = "feature_not_entitled"

	// Not Found (404)
	ErrCodeNotFoundVoyage  ErrorCode = "not_found_voyage"
	ErrCodeNotFoundProfile ErrorCode = "not_found_profile"
	ErrCodeNotFoundShare   ErrorCode = "not_found_share_link"

	// Conflict (409)
	ErrCodeConflictEmail      ErrorCode = "conflict_email_exists"
	ErrCodeConflictConcurrent ErrorCode = "conflict_concurrent_modification"

	// Internal/Upstream (500/502)
	ErrCodeInternalDB         ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamStripe     ErrorCode = "upstream_stripe_unavailable"
	ErrCodeUpstreamStorage    ErrorCode = "upstream_storage_unavailable"
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"

	// Payment-specific
	ErrCodePaymentDeclined ErrorCode = "payment_declined"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Used by the API layer to translate AppErrors into HTTP responses.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest // 400
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized // 401
	case strings.HasPrefix(s, "limit_"), s == string(ErrCodeFeatureNotEntitled):
		return http.StatusForbidden // 403
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound // 404
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict // 409
	case s == string(ErrCodePaymentDeclined):
		return http.StatusPaymentRequired // 402
	case s == string(ErrCodeUpstreamRateLimited):
		return http.StatusTooManyRequests // 429
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway // 502
	case strings.HasPrefix(s, "internal_"):
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}

// AppError is the standard application error type used throughout the
// service. All domain and handler errors should be expressed as AppError to
// enable consistent error formatting, HTTP status mapping, and error chain
// support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and
// optional underlying error. This is the standard constructor for domain
// errors.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError with structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}

// ErrNotAuthenticated is the error returned when entitlement resolution is
// attempted without an authenticated account. It is the only resolution
// failure that propagates to the caller instead of degrading to free tier.
func ErrNotAuthenticated() *AppError {
	return NewAppError(ErrCodeAuthNotAuthenticated, "no authenticated account in session", nil)
}
