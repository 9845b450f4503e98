package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voyage/internal/types"
)

var sessionTestNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

// memSessionStore is an in-memory SessionStore keyed by token hash.
type memSessionStore struct {
	sessions  map[string]*types.Session
	createErr error
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: make(map[string]*types.Session)}
}

func (m *memSessionStore) Create(_ context.Context, s *types.Session) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.sessions[s.TokenHash] = s
	return nil
}

func (m *memSessionStore) GetByTokenHash(_ context.Context, tokenHash string) (*types.Session, error) {
	s, ok := m.sessions[tokenHash]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "session not found", nil)
	}
	if !s.ExpiresAt.After(sessionTestNow) {
		return nil, types.NewAppError(types.ErrCodeAuthSessionExpired, "session has expired", nil)
	}
	return s, nil
}

func (m *memSessionStore) DeleteByTokenHash(_ context.Context, tokenHash string) error {
	delete(m.sessions, tokenHash)
	return nil
}

func (m *memSessionStore) DeleteByAccount(_ context.Context, accountID string) error {
	for hash, s := range m.sessions {
		if s.AccountID == accountID {
			delete(m.sessions, hash)
		}
	}
	return nil
}

func (m *memSessionStore) DeleteExpired(_ context.Context) (int64, error) {
	var n int64
	for hash, s := range m.sessions {
		if !s.ExpiresAt.After(sessionTestNow) {
			delete(m.sessions, hash)
			n++
		}
	}
	return n, nil
}

func newTestSessionService(store SessionStore) *SessionService {
	return NewSessionService(
		store,
		nil, // production token generator
		DefaultSessionConfig(),
		fixedClock{now: sessionTestNow},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

func TestSessionService_Issue_ReturnsRawTokenStoresHash(t *testing.T) {
	store := newMemSessionStore()
	svc := newTestSessionService(store)

	session, rawToken, err := svc.Issue(context.Background(), "acct_1", "10.0.0.1", "TestBrowser/1.0")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(rawToken, "sess_"))
	assert.NotEqual(t, rawToken, session.TokenHash)
	assert.Equal(t, HashToken(rawToken), session.TokenHash)
	assert.Equal(t, "acct_1", session.AccountID)
	assert.Equal(t, sessionTestNow.Add(30*24*time.Hour), session.ExpiresAt)

	// The store holds only the hash.
	_, ok := store.sessions[rawToken]
	assert.False(t, ok)
	_, ok = store.sessions[session.TokenHash]
	assert.True(t, ok)
}

func TestSessionService_Issue_UniqueTokens(t *testing.T) {
	svc := newTestSessionService(newMemSessionStore())

	_, tok1, err := svc.Issue(context.Background(), "acct_1", "", "")
	require.NoError(t, err)
	_, tok2, err := svc.Issue(context.Background(), "acct_1", "", "")
	require.NoError(t, err)

	assert.NotEqual(t, tok1, tok2)
}

func TestSessionService_Validate_RoundTrip(t *testing.T) {
	svc := newTestSessionService(newMemSessionStore())

	_, rawToken, err := svc.Issue(context.Background(), "acct_1", "", "")
	require.NoError(t, err)

	session, err := svc.Validate(context.Background(), rawToken)
	require.NoError(t, err)
	assert.Equal(t, "acct_1", session.AccountID)
}

func TestSessionService_Validate_EmptyToken(t *testing.T) {
	svc := newTestSessionService(newMemSessionStore())

	_, err := svc.Validate(context.Background(), "")

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeAuthTokenMissing, appErr.Code)
}

func TestSessionService_Validate_UnknownToken(t *testing.T) {
	svc := newTestSessionService(newMemSessionStore())

	_, err := svc.Validate(context.Background(), "sess_bogus")

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeAuthTokenInvalid, appErr.Code)
}

func TestSessionService_Revoke_ThenValidateFails(t *testing.T) {
	svc := newTestSessionService(newMemSessionStore())

	_, rawToken, err := svc.Issue(context.Background(), "acct_1", "", "")
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(context.Background(), rawToken))

	_, err = svc.Validate(context.Background(), rawToken)
	require.Error(t, err)
}

func TestSessionService_Revoke_Idempotent(t *testing.T) {
	svc := newTestSessionService(newMemSessionStore())
	require.NoError(t, svc.Revoke(context.Background(), "sess_never_existed"))
}

func TestSessionService_RevokeAll(t *testing.T) {
	store := newMemSessionStore()
	svc := newTestSessionService(store)

	_, tok1, _ := svc.Issue(context.Background(), "acct_1", "", "")
	_, tok2, _ := svc.Issue(context.Background(), "acct_1", "", "")
	_, tokOther, _ := svc.Issue(context.Background(), "acct_2", "", "")

	require.NoError(t, svc.RevokeAll(context.Background(), "acct_1"))

	_, err := svc.Validate(context.Background(), tok1)
	assert.Error(t, err)
	_, err = svc.Validate(context.Background(), tok2)
	assert.Error(t, err)
	_, err = svc.Validate(context.Background(), tokOther)
	assert.NoError(t, err)
}

func TestCryptoTokenGenerator_Format(t *testing.T) {
	gen := &CryptoTokenGenerator{Prefix: "sess_"}

	tok, err := gen.GenerateToken()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(tok, "sess_"))
	assert.Len(t, tok, len("sess_")+64)
}

func TestHashToken_Deterministic(t *testing.T) {
	h1 := HashToken("sess_abc")
	h2 := HashToken("sess_abc")
	h3 := HashToken("sess_abd")

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 64)
}

func TestCanonicalizeEmail(t *testing.T) {
	assert.Equal(t, "ana@example.com", CanonicalizeEmail("  Ana@Example.COM "))
}
