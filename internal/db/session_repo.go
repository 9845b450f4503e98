package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"voyage/internal/types"
)

// SessionRepository provides data access for the sessions table. Sessions
// are looked up by the SHA-256 hash of the bearer token; the raw token never
// touches the database.
type SessionRepository struct {
	db DBTX
}

// NewSessionRepository creates a new SessionRepository backed by the given
// database connection (pool or transaction).
func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a new session record.
func (r *SessionRepository) Create(ctx context.Context, session *types.Session) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO sessions (id, account_id, token_hash, user_agent, ip_address, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))`,
		session.ID,
		session.AccountID,
		session.TokenHash,
		nilIfEmpty(session.UserAgent),
		nilIfEmpty(session.IPAddress),
		session.ExpiresAt,
		nilIfZeroTime(session.CreatedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create session", err)
	}
	return nil
}

// GetByTokenHash retrieves an unexpired session by its token hash.
// Returns ErrCodeAuthTokenInvalid when no matching session exists and
// ErrCodeAuthSessionExpired when the session exists but has lapsed, so the
// client can distinguish "log in again" from "bad token".
func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*types.Session, error) {
	var s types.Session
	var (
		userAgent *string
		ipAddress *string
		expired   bool
	)
	err := r.db.QueryRow(ctx,
		`SELECT id, account_id, token_hash, user_agent, ip_address, expires_at, created_at,
		        expires_at <= NOW() AS expired
		 FROM sessions
		 WHERE token_hash = $1`,
		tokenHash,
	).Scan(
		&s.ID,
		&s.AccountID,
		&s.TokenHash,
		&userAgent,
		&ipAddress,
		&s.ExpiresAt,
		&s.CreatedAt,
		&expired,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid session token", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve session", err)
	}
	if expired {
		return nil, types.NewAppError(types.ErrCodeAuthSessionExpired, "session has expired", nil)
	}
	if userAgent != nil {
		s.UserAgent = *userAgent
	}
	if ipAddress != nil {
		s.IPAddress = *ipAddress
	}
	return &s, nil
}

// DeleteByTokenHash removes a session (logout). Deleting a token that no
// longer exists is not an error; logout is idempotent.
func (r *SessionRepository) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM sessions WHERE token_hash = $1`,
		tokenHash,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete session", err)
	}
	return nil
}

// DeleteByAccount removes every session for an account. Used when the
// password changes.
func (r *SessionRepository) DeleteByAccount(ctx context.Context, accountID string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM sessions WHERE account_id = $1`,
		accountID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete account sessions", err)
	}
	return nil
}

// DeleteExpired purges lapsed sessions. Called opportunistically; there is
// no dedicated cleanup job.
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to purge expired sessions", err)
	}
	return tag.RowsAffected(), nil
}
