package core

import (
	"errors"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"voyage/internal/types"
)

// Validator wraps go-playground/validator and translates its errors into
// field-keyed AppError details suitable for API responses.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a new Validator and registers custom validation tags.
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// rating: integer 1-5, or 0 for unrated.
	_ = v.RegisterValidation("rating", func(fl validator.FieldLevel) bool {
		r := types.Rating(fl.Field().Int())
		return r == 0 || r.Valid()
	})

	return &Validator{
		validate: v,
		logger:   logger,
	}
}

// ValidateStruct validates the tagged fields of a request struct. On
// failure it returns a *types.AppError with per-field messages in Details.
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var invalidErr *validator.InvalidValidationError
	if errors.As(err, &invalidErr) {
		// Programming error (non-struct passed), not client input.
		v.logger.Error("validator received invalid value", "error", err)
		return types.NewAppError(types.ErrCodeInternalUnexpected, "validation failed", err)
	}

	details := make(map[string]any)
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		for _, fe := range validationErrs {
			details[fe.Field()] = fieldErrorMessage(fe)
		}
	}

	return types.NewAppErrorWithDetails(
		types.ErrCodeValidationMissingField,
		"request validation failed",
		err,
		details,
	)
}

// fieldErrorMessage maps a field error to a human-readable message.
func fieldErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "latitude":
		return "must be a valid latitude"
	case "longitude":
		return "must be a valid longitude"
	case "rating":
		return "must be between 1 and 5, or 0 for unrated"
	case "url":
		return "must be a valid URL"
	default:
		return "failed validation rule: " + fe.Tag()
	}
}
