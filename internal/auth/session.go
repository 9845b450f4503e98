package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"voyage/internal/types"
)

// SessionConfig holds configuration for session management.
type SessionConfig struct {
	// TTL is the lifetime of a new session. Default: 30 days.
	TTL time.Duration

	// TokenPrefix is prepended to raw session tokens ("sess_").
	TokenPrefix string
}

// DefaultSessionConfig returns the default session configuration.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		TTL:         30 * 24 * time.Hour,
		TokenPrefix: "sess_",
	}
}

// SessionStore defines the data access methods needed by the SessionService.
type SessionStore interface {
	Create(ctx context.Context, session *types.Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*types.Session, error)
	DeleteByTokenHash(ctx context.Context, tokenHash string) error
	DeleteByAccount(ctx context.Context, accountID string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// TokenGenerator abstracts the entropy source for testability.
type TokenGenerator interface {
	GenerateToken() (string, error)
}

// CryptoTokenGenerator is the production TokenGenerator, using crypto/rand.
type CryptoTokenGenerator struct {
	// Prefix is prepended to generated tokens.
	Prefix string
}

// GenerateToken generates a cryptographically secure session token.
// Format: prefix + 32 random hex bytes (64 hex chars).
func (g *CryptoTokenGenerator) GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return g.Prefix + hex.EncodeToString(b), nil
}

// SessionService issues and validates bearer-token sessions. The raw token
// is returned to the client exactly once; only its SHA-256 hash is stored.
type SessionService struct {
	store    SessionStore
	tokenGen TokenGenerator
	config   SessionConfig
	clock    types.Clock
	logger   *slog.Logger
}

// NewSessionService creates a new SessionService.
// If tokenGen is nil, the production CryptoTokenGenerator is used.
// If clock is nil, RealClock is used. If logger is nil, slog.Default() is used.
func NewSessionService(
	store SessionStore,
	tokenGen TokenGenerator,
	config SessionConfig,
	clock types.Clock,
	logger *slog.Logger,
) *SessionService {
	if tokenGen == nil {
		tokenGen = &CryptoTokenGenerator{Prefix: config.TokenPrefix}
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionService{
		store:    store,
		tokenGen: tokenGen,
		config:   config,
		clock:    clock,
		logger:   logger,
	}
}

// Issue creates a new session for the account and returns the Session row
// and the raw bearer token for the client.
func (s *SessionService) Issue(ctx context.Context, accountID, ip, userAgent string) (*types.Session, string, error) {
	rawToken, err := s.tokenGen.GenerateToken()
	if err != nil {
		return nil, "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to generate session token", err)
	}

	now := s.clock.Now()
	session := &types.Session{
		ID:        uuid.NewString(),
		AccountID: accountID,
		TokenHash: HashToken(rawToken),
		IPAddress: ip,
		UserAgent: userAgent,
		ExpiresAt: now.Add(s.config.TTL),
		CreatedAt: now,
	}

	if err := s.store.Create(ctx, session); err != nil {
		return nil, "", err
	}

	s.logger.InfoContext(ctx, "session created",
		"session_id", session.ID,
		"account_id", accountID,
	)

	return session, rawToken, nil
}

// Validate resolves a raw bearer token to its session. The store maps a
// missing row to ErrCodeAuthTokenInvalid and a past-expiry row to
// ErrCodeAuthSessionExpired, so those propagate unchanged.
func (s *SessionService) Validate(ctx context.Context, rawToken string) (*types.Session, error) {
	if rawToken == "" {
		return nil, types.NewAppError(types.ErrCodeAuthTokenMissing, "no session token provided", nil)
	}
	return s.store.GetByTokenHash(ctx, HashToken(rawToken))
}

// Revoke deletes the session for the raw token. Deleting a token that no
// longer exists is a success: logout is idempotent.
func (s *SessionService) Revoke(ctx context.Context, rawToken string) error {
	return s.store.DeleteByTokenHash(ctx, HashToken(rawToken))
}

// RevokeAll removes every session belonging to an account.
func (s *SessionService) RevokeAll(ctx context.Context, accountID string) error {
	if err := s.store.DeleteByAccount(ctx, accountID); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "all sessions revoked", "account_id", accountID)
	return nil
}

// PurgeExpired removes expired sessions across all accounts. Called
// opportunistically; orphaned rows are harmless in the meantime because
// Validate rejects them.
func (s *SessionService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.store.DeleteExpired(ctx)
}
