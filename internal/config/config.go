// Package config defines the global configuration structure for the Voyage
// service. Configuration is loaded once at process initialization and is
// immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format causes the application to
// fail immediately on startup.
package config

import (
	"time"

	"voyage/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the Voyage service.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"OTEL_SERVICE_NAME" default:"voyage-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	IsTestMode  bool   `envconfig:"IS_TEST_MODE" default:"false"`

	// Domain Configurations
	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Billing       BillingConfig
	Auth          AuthConfig
	Entitlement   EntitlementConfig
	Storage       StorageConfig
	Security      SecurityConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// Public URLs for redirects and share links (no trailing slash)
	APIExternalURL string `envconfig:"API_EXTERNAL_URL" validate:"required,url"` // e.g., https://api.voyage.app
	AppURL         string `envconfig:"APP_URL" validate:"required,url"`          // e.g., https://voyage.app
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`     // Fail fast when pool exhausted
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"` // Detect dead connections during failover
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// Resource Identifiers
	PhotoBucket       string `envconfig:"PHOTO_BUCKET" validate:"required"`
	SubscriptionQueue string `envconfig:"SQS_SUBSCRIPTION_EVENTS" validate:"required,url"`
	DlqURL            string `envconfig:"SQS_DLQ" validate:"required,url"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// BillingConfig holds Stripe payment integration credentials and keys.
type BillingConfig struct {
	StripeSecretKey      SecretString `envconfig:"STRIPE_SECRET_KEY" validate:"required"`
	StripeWebhookSecret  SecretString `envconfig:"STRIPE_WEBHOOK_SECRET" validate:"required"`
	StripePublishableKey string       `envconfig:"STRIPE_PUBLISHABLE_KEY" validate:"required"`
	// PremiumPriceID is the Stripe Price the checkout session subscribes to.
	PremiumPriceID string `envconfig:"STRIPE_PREMIUM_PRICE_ID" validate:"required"`
}

// AuthConfig holds password hashing and session management settings.
type AuthConfig struct {
	// BcryptCost of 0 means bcrypt.DefaultCost.
	BcryptCost int           `envconfig:"BCRYPT_COST" default:"0"`
	SessionTTL time.Duration `envconfig:"SESSION_TTL" default:"720h"` // 30 days
}

// EntitlementConfig tunes the tier resolver.
type EntitlementConfig struct {
	// RemoteTimeout bounds the Stripe subscription check before the
	// resolver falls back to the profile record.
	RemoteTimeout time.Duration `envconfig:"ENTITLEMENT_REMOTE_TIMEOUT" default:"5s"`
}

// StorageConfig holds photo upload settings.
type StorageConfig struct {
	// UploadURLTTL is the validity window of presigned upload URLs.
	UploadURLTTL time.Duration `envconfig:"UPLOAD_URL_TTL" default:"15m"`
	MaxPhotoBytes int64        `envconfig:"MAX_PHOTO_BYTES" default:"10485760"` // 10 MiB
}

// SecurityConfig holds CORS and abuse-protection settings.
type SecurityConfig struct {
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// ObservabilityConfig holds telemetry and monitoring settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"Voyage"`
	EnableTracing   bool   `envconfig:"ENABLE_TRACING" default:"true"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
