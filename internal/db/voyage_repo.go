package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"voyage/internal/types"
)

// VoyageRepository provides data access for the voyages table. Voyages are
// soft-deleted; every query filters deleted_at IS NULL so trashed entries
// neither appear in listings nor count against the entry quota.
type VoyageRepository struct {
	db DBTX
}

// NewVoyageRepository creates a new VoyageRepository backed by the given
// database connection (pool or transaction).
func NewVoyageRepository(db DBTX) *VoyageRepository {
	return &VoyageRepository{db: db}
}

const voyageColumns = `v.id, v.owner_id, v.title, v.location, v.latitude, v.longitude,
	v.start_date, v.end_date, v.rating, v.notes, v.image_urls, v.created_at, v.updated_at, v.deleted_at`

// scanVoyage scans a single voyage row. image_urls is a text[] column that
// pgx scans directly into []string.
func scanVoyage(row pgx.Row) (*types.Voyage, error) {
	var v types.Voyage
	var notes *string
	err := row.Scan(
		&v.ID,
		&v.OwnerID,
		&v.Title,
		&v.Location,
		&v.Latitude,
		&v.Longitude,
		&v.StartDate,
		&v.EndDate,
		&v.Rating,
		&notes,
		&v.ImageURLs,
		&v.CreatedAt,
		&v.UpdatedAt,
		&v.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	if notes != nil {
		v.Notes = *notes
	}
	return &v, nil
}

// Create inserts a new voyage. The caller is responsible for the quota check;
// this method only persists.
func (r *VoyageRepository) Create(ctx context.Context, v *types.Voyage) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO voyages (id, owner_id, title, location, latitude, longitude,
		 start_date, end_date, rating, notes, image_urls, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, COALESCE($12, NOW()))`,
		v.ID,
		v.OwnerID,
		v.Title,
		v.Location,
		v.Latitude,
		v.Longitude,
		v.StartDate,
		v.EndDate,
		v.Rating,
		nilIfEmpty(v.Notes),
		v.ImageURLs,
		nilIfZeroTime(v.CreatedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create voyage", err)
	}
	return nil
}

// GetByID retrieves a voyage by ID scoped to its owner.
// Returns ErrCodeNotFoundVoyage if no active voyage is found.
func (r *VoyageRepository) GetByID(ctx context.Context, id, ownerID string) (*types.Voyage, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+voyageColumns+`
		 FROM voyages v
		 WHERE v.id = $1 AND v.owner_id = $2 AND v.deleted_at IS NULL`,
		id,
		ownerID,
	)

	v, err := scanVoyage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundVoyage, "voyage not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve voyage", err)
	}
	return v, nil
}

// GetPublicByID retrieves a voyage without owner scoping. Used by the share
// link viewer, where the reader is not the owner.
func (r *VoyageRepository) GetPublicByID(ctx context.Context, id string) (*types.Voyage, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+voyageColumns+`
		 FROM voyages v
		 WHERE v.id = $1 AND v.deleted_at IS NULL`,
		id,
	)

	v, err := scanVoyage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundVoyage, "voyage not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve voyage", err)
	}
	return v, nil
}

// ListByOwner returns all active voyages for an account, newest start date
// first.
func (r *VoyageRepository) ListByOwner(ctx context.Context, ownerID string) ([]types.Voyage, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+voyageColumns+`
		 FROM voyages v
		 WHERE v.owner_id = $1 AND v.deleted_at IS NULL
		 ORDER BY v.start_date DESC, v.created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list voyages", err)
	}
	defer rows.Close()

	var voyages []types.Voyage
	for rows.Next() {
		v, err := scanVoyage(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan voyage row", err)
		}
		voyages = append(voyages, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "voyage listing failed", err)
	}
	return voyages, nil
}

// CountByOwner returns the number of active voyages for an account. This is
// the current-count input to the entry quota check.
func (r *VoyageRepository) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM voyages WHERE owner_id = $1 AND deleted_at IS NULL`,
		ownerID,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count voyages", err)
	}
	return count, nil
}

// Update applies changes to the mutable voyage fields. Image attachments go
// through SetImageURLs instead so the quota clip happens in one place.
func (r *VoyageRepository) Update(ctx context.Context, v *types.Voyage) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE voyages
		 SET title = $1, location = $2, latitude = $3, longitude = $4,
		     start_date = $5, end_date = $6, rating = $7, notes = $8, updated_at = NOW()
		 WHERE id = $9 AND owner_id = $10 AND deleted_at IS NULL`,
		v.Title,
		v.Location,
		v.Latitude,
		v.Longitude,
		v.StartDate,
		v.EndDate,
		v.Rating,
		nilIfEmpty(v.Notes),
		v.ID,
		v.OwnerID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update voyage", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundVoyage, "voyage not found", nil)
	}
	return nil
}

// SetImageURLs replaces the voyage's photo attachment list. The caller has
// already clipped the list to the policy limit.
func (r *VoyageRepository) SetImageURLs(ctx context.Context, id, ownerID string, urls []string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE voyages SET image_urls = $1, updated_at = NOW()
		 WHERE id = $2 AND owner_id = $3 AND deleted_at IS NULL`,
		urls,
		id,
		ownerID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update voyage images", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundVoyage, "voyage not found", nil)
	}
	return nil
}

// SoftDelete marks a voyage deleted by setting deleted_at = NOW(). Pins and
// share links referencing it are removed by the caller in the same
// transaction.
func (r *VoyageRepository) SoftDelete(ctx context.Context, id, ownerID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE voyages SET deleted_at = NOW()
		 WHERE id = $1 AND owner_id = $2 AND deleted_at IS NULL`,
		id,
		ownerID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete voyage", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundVoyage, "voyage not found", nil)
	}
	return nil
}
