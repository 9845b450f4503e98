package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"voyage/internal/types"
)

// ProfileStore defines the data access methods needed by the Service for
// account operations.
type ProfileStore interface {
	Create(ctx context.Context, profile *types.Profile) error
	GetByEmail(ctx context.Context, email string) (*types.Profile, error)
	GetByID(ctx context.Context, id string) (*types.Profile, error)
}

// Service implements registration, login, and logout.
//
// Login failures are indistinguishable by design: user-not-found and
// wrong-password both return ErrCodeAuthInvalidCreds so responses do not
// reveal which emails are registered.
type Service struct {
	profiles ProfileStore
	sessions *SessionService
	hasher   PasswordHasher
	clock    types.Clock
	logger   *slog.Logger
}

// ServiceConfig holds the dependencies for creating an auth Service.
type ServiceConfig struct {
	Profiles ProfileStore
	Sessions *SessionService
	Hasher   PasswordHasher
	Clock    types.Clock
	Logger   *slog.Logger
}

// NewService creates a new auth Service.
// If Hasher is nil, the production bcrypt hasher is used.
// If Clock is nil, RealClock is used. If Logger is nil, slog.Default() is used.
func NewService(cfg ServiceConfig) *Service {
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = NewBcryptHasher(0)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		profiles: cfg.Profiles,
		sessions: cfg.Sessions,
		hasher:   hasher,
		clock:    clock,
		logger:   logger,
	}
}

// Register creates a new account and logs it in:
//  1. Canonicalize the email.
//  2. Hash the password (bcrypt).
//  3. Insert the profile; a duplicate email surfaces as ErrCodeConflictEmail.
//  4. Issue a session so the client is authenticated immediately.
func (s *Service) Register(ctx context.Context, email, password, displayName, ip, userAgent string) (*types.Profile, string, error) {
	email = CanonicalizeEmail(email)

	passwordHash, err := s.hasher.GenerateFromPassword(password)
	if err != nil {
		return nil, "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to hash password", err)
	}

	profile := &types.Profile{
		ID:           uuid.NewString(),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: passwordHash,
		CreatedAt:    s.clock.Now(),
	}

	if err := s.profiles.Create(ctx, profile); err != nil {
		return nil, "", err
	}

	_, rawToken, err := s.sessions.Issue(ctx, profile.ID, ip, userAgent)
	if err != nil {
		return nil, "", err
	}

	s.logger.InfoContext(ctx, "account registered",
		"account_id", profile.ID,
	)

	return profile, rawToken, nil
}

// Login verifies credentials and issues a session.
func (s *Service) Login(ctx context.Context, email, password, ip, userAgent string) (*types.Profile, string, error) {
	email = CanonicalizeEmail(email)

	profile, err := s.profiles.GetByEmail(ctx, email)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundProfile {
			// Burn a bcrypt comparison so the not-found path takes as long
			// as a wrong password.
			_ = s.hasher.CompareHashAndPassword(enumerationDecoyHash, password)
			return nil, "", types.NewAppError(types.ErrCodeAuthInvalidCreds, "invalid email or password", nil)
		}
		return nil, "", err
	}

	if err := s.hasher.CompareHashAndPassword(profile.PasswordHash, password); err != nil {
		return nil, "", types.NewAppError(types.ErrCodeAuthInvalidCreds, "invalid email or password", nil)
	}

	_, rawToken, err := s.sessions.Issue(ctx, profile.ID, ip, userAgent)
	if err != nil {
		return nil, "", err
	}

	s.logger.InfoContext(ctx, "account logged in",
		"account_id", profile.ID,
	)

	return profile, rawToken, nil
}

// Logout revokes the session for the given raw token. Idempotent.
func (s *Service) Logout(ctx context.Context, rawToken string) error {
	return s.sessions.Revoke(ctx, rawToken)
}

// Authenticate resolves a raw bearer token to the acting account. This is
// the middleware entry point; the returned Actor is stored in the request
// context.
func (s *Service) Authenticate(ctx context.Context, rawToken string) (types.Actor, error) {
	session, err := s.sessions.Validate(ctx, rawToken)
	if err != nil {
		return types.Actor{}, err
	}
	return types.Actor{
		ID:   session.AccountID,
		Type: types.ActorTypeUser,
	}, nil
}

// enumerationDecoyHash is a valid bcrypt hash of an unguessable value; it is
// only ever compared against to equalize login timing.
const enumerationDecoyHash = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"
