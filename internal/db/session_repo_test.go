package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"voyage/internal/types"
)

func TestSessionRepository_Create_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSessionRepository(db)

	session := &types.Session{
		ID:        "sess_row_1",
		AccountID: "acct_1",
		TokenHash: "a3f5...",
		UserAgent: "TestBrowser/1.0",
		IPAddress: "192.168.1.1",
		ExpiresAt: time.Now().Add(30 * 24 * time.Hour),
	}

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := repo.Create(context.Background(), session)
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestSessionRepository_Create_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSessionRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	err := repo.Create(context.Background(), &types.Session{ID: "sess_row_1"})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestSessionRepository_GetByTokenHash_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSessionRepository(db)

	now := time.Now().UTC()
	row := &mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*string) = "sess_row_1"
			*dest[1].(*string) = "acct_1"
			*dest[2].(*string) = "a3f5..."
			*dest[3].(**string) = strPtr("TestBrowser/1.0")
			*dest[4].(**string) = nil
			*dest[5].(*time.Time) = now.Add(24 * time.Hour)
			*dest[6].(*time.Time) = now
			*dest[7].(*bool) = false
			return nil
		},
	}
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(row)

	s, err := repo.GetByTokenHash(context.Background(), "a3f5...")
	require.NoError(t, err)
	assert.Equal(t, "acct_1", s.AccountID)
	assert.Equal(t, "TestBrowser/1.0", s.UserAgent)
}

func TestSessionRepository_GetByTokenHash_Invalid(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSessionRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.GetByTokenHash(context.Background(), "bogus")
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeAuthTokenInvalid, appErr.Code)
}

func TestSessionRepository_GetByTokenHash_Expired(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSessionRepository(db)

	now := time.Now().UTC()
	row := &mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*string) = "sess_row_1"
			*dest[1].(*string) = "acct_1"
			*dest[2].(*string) = "a3f5..."
			*dest[3].(**string) = nil
			*dest[4].(**string) = nil
			*dest[5].(*time.Time) = now.Add(-time.Hour)
			*dest[6].(*time.Time) = now.Add(-48 * time.Hour)
			*dest[7].(*bool) = true
			return nil
		},
	}
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(row)

	_, err := repo.GetByTokenHash(context.Background(), "a3f5...")
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeAuthSessionExpired, appErr.Code)
}

func TestSessionRepository_DeleteByTokenHash_Idempotent(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSessionRepository(db)

	// Zero rows deleted is still success: logout is idempotent.
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("DELETE 0"), nil)

	err := repo.DeleteByTokenHash(context.Background(), "gone")
	require.NoError(t, err)
}

func TestSessionRepository_DeleteExpired(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSessionRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("DELETE 3"), nil)

	n, err := repo.DeleteExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
