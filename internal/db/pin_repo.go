package db

import (
	"context"

	"github.com/jackc/pgx/v5"

	"voyage/internal/types"
)

// PinRepository provides data access for the pinned_locations table.
type PinRepository struct {
	db DBTX
}

// NewPinRepository creates a new PinRepository backed by the given database
// connection (pool or transaction).
func NewPinRepository(db DBTX) *PinRepository {
	return &PinRepository{db: db}
}

const pinColumns = `id, voyage_id, owner_id, label, latitude, longitude, created_at`

func scanPin(row pgx.Row) (*types.PinnedLocation, error) {
	var p types.PinnedLocation
	err := row.Scan(
		&p.ID,
		&p.VoyageID,
		&p.OwnerID,
		&p.Label,
		&p.Latitude,
		&p.Longitude,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts a new pin. The caller is responsible for the quota check.
func (r *PinRepository) Create(ctx context.Context, pin *types.PinnedLocation) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO pinned_locations (id, voyage_id, owner_id, label, latitude, longitude, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))`,
		pin.ID,
		pin.VoyageID,
		pin.OwnerID,
		pin.Label,
		pin.Latitude,
		pin.Longitude,
		nilIfZeroTime(pin.CreatedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create pin", err)
	}
	return nil
}

// ListByOwner returns all pins for an account, oldest first so the map
// renders them in creation order.
func (r *PinRepository) ListByOwner(ctx context.Context, ownerID string) ([]types.PinnedLocation, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+pinColumns+`
		 FROM pinned_locations
		 WHERE owner_id = $1
		 ORDER BY created_at ASC`,
		ownerID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list pins", err)
	}
	defer rows.Close()

	var pins []types.PinnedLocation
	for rows.Next() {
		p, err := scanPin(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan pin row", err)
		}
		pins = append(pins, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "pin listing failed", err)
	}
	return pins, nil
}

// CountByOwner returns the number of pins for an account. This is the
// current-count input to the pin quota check.
func (r *PinRepository) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM pinned_locations WHERE owner_id = $1`,
		ownerID,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count pins", err)
	}
	return count, nil
}

// Delete removes a pin, scoped to its owner.
func (r *PinRepository) Delete(ctx context.Context, id, ownerID string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM pinned_locations WHERE id = $1 AND owner_id = $2`,
		id,
		ownerID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete pin", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundVoyage, "pin not found", nil)
	}
	return nil
}

// DeleteByVoyage removes all pins attached to a voyage. Called when the
// voyage is deleted.
func (r *PinRepository) DeleteByVoyage(ctx context.Context, voyageID, ownerID string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM pinned_locations WHERE voyage_id = $1 AND owner_id = $2`,
		voyageID,
		ownerID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete voyage pins", err)
	}
	return nil
}
