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

// --- Mock Rows for Query ---

// mockRows implements pgx.Rows; each row is a scan function so tests control
// exactly what each column receives.
type mockRows struct {
	scans  []func(dest ...any) error
	idx    int
	closed bool
	errVal error
}

func newMockRows(scans ...func(dest ...any) error) *mockRows {
	return &mockRows{scans: scans, idx: -1}
}

func (r *mockRows) Next() bool {
	if r.closed {
		return false
	}
	r.idx++
	return r.idx < len(r.scans)
}

func (r *mockRows) Scan(dest ...any) error {
	return r.scans[r.idx](dest...)
}

func (r *mockRows) Close()                                       { r.closed = true }
func (r *mockRows) Err() error                                   { return r.errVal }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Values() ([]any, error)                       { return nil, nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }

// scanTestVoyage fills the voyageColumns scan targets with a fixed voyage.
func scanTestVoyage(id string, images []string) func(dest ...any) error {
	return func(dest ...any) error {
		now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
		*dest[0].(*string) = id
		*dest[1].(*string) = "acct_1"
		*dest[2].(*string) = "Kyoto in Spring"
		*dest[3].(*string) = "Kyoto, Japan"
		*dest[4].(**float64) = nil
		*dest[5].(**float64) = nil
		*dest[6].(*time.Time) = now
		*dest[7].(*time.Time) = now.Add(5 * 24 * time.Hour)
		*dest[8].(*types.Rating) = types.Rating(5)
		*dest[9].(**string) = nil
		*dest[10].(*[]string) = images
		*dest[11].(*time.Time) = now
		*dest[12].(*time.Time) = now
		*dest[13].(**time.Time) = nil
		return nil
	}
}

// --- VoyageRepository Tests ---

func TestVoyageRepository_Create_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewVoyageRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := repo.Create(context.Background(), &types.Voyage{
		ID:        "voy_1",
		OwnerID:   "acct_1",
		Title:     "Kyoto in Spring",
		Location:  "Kyoto, Japan",
		StartDate: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 2, 6, 0, 0, 0, 0, time.UTC),
		Rating:    5,
	})
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestVoyageRepository_GetByID_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewVoyageRepository(db)

	row := &mockRow{scanFn: scanTestVoyage("voy_1", []string{"https://cdn.voyage.test/p1.jpg"})}
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(row)

	v, err := repo.GetByID(context.Background(), "voy_1", "acct_1")
	require.NoError(t, err)
	assert.Equal(t, "voy_1", v.ID)
	assert.Equal(t, "Kyoto in Spring", v.Title)
	assert.Equal(t, types.Rating(5), v.Rating)
	require.Len(t, v.ImageURLs, 1)
}

func TestVoyageRepository_GetByID_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewVoyageRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.GetByID(context.Background(), "voy_missing", "acct_1")
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundVoyage, appErr.Code)
}

func TestVoyageRepository_ListByOwner(t *testing.T) {
	db := new(mockDBTX)
	repo := NewVoyageRepository(db)

	rows := newMockRows(
		scanTestVoyage("voy_1", nil),
		scanTestVoyage("voy_2", []string{"https://cdn.voyage.test/p2.jpg"}),
	)
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(rows, nil)

	voyages, err := repo.ListByOwner(context.Background(), "acct_1")
	require.NoError(t, err)
	require.Len(t, voyages, 2)
	assert.Equal(t, "voy_1", voyages[0].ID)
	assert.Equal(t, "voy_2", voyages[1].ID)
}

func TestVoyageRepository_CountByOwner(t *testing.T) {
	db := new(mockDBTX)
	repo := NewVoyageRepository(db)

	row := &mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*int) = 7
			return nil
		},
	}
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(row)

	count, err := repo.CountByOwner(context.Background(), "acct_1")
	require.NoError(t, err)
	assert.Equal(t, 7, count)
}

func TestVoyageRepository_SetImageURLs_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewVoyageRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.SetImageURLs(context.Background(), "voy_1", "acct_1",
		[]string{"https://cdn.voyage.test/p1.jpg"})
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestVoyageRepository_SoftDelete_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewVoyageRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := repo.SoftDelete(context.Background(), "voy_missing", "acct_1")
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundVoyage, appErr.Code)
}

// --- PinRepository Tests ---

func TestPinRepository_CountByOwner(t *testing.T) {
	db := new(mockDBTX)
	repo := NewPinRepository(db)

	row := &mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*int) = 2
			return nil
		},
	}
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(row)

	count, err := repo.CountByOwner(context.Background(), "acct_1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestPinRepository_Delete_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewPinRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("DELETE 0"), nil)

	err := repo.Delete(context.Background(), "pin_missing", "acct_1")
	require.Error(t, err)
}
