package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"voyage/internal/types"
)

// ProfileRepository provides data access for the profiles table. It doubles
// as the entitlement resolver's PremiumRecordStore: GetPremiumRecord and
// SetPremiumState read and write the slim is_premium/premium_expires_at
// slice of the row.
type ProfileRepository struct {
	db DBTX
}

// NewProfileRepository creates a new ProfileRepository backed by the given
// database connection (pool or transaction).
func NewProfileRepository(db DBTX) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// profileColumns defines the standard set of columns selected for profile
// queries. Used consistently across all query methods to avoid column drift.
const profileColumns = `p.id, p.email, p.display_name, p.avatar_url, p.password_hash,
	p.is_premium, p.premium_expires_at, p.stripe_customer_id, p.created_at, p.updated_at`

// scanProfile scans a single profile row into a types.Profile struct.
// The columns must match the order defined in profileColumns. Uses nullable
// scan targets for columns that may be NULL in the database.
func scanProfile(row pgx.Row) (*types.Profile, error) {
	var p types.Profile
	var (
		displayName      *string
		avatarURL        *string
		passwordHash     *string
		stripeCustomerID *string
	)
	err := row.Scan(
		&p.ID,
		&p.Email,
		&displayName,
		&avatarURL,
		&passwordHash,
		&p.IsPremium,
		&p.PremiumExpiresAt,
		&stripeCustomerID,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if displayName != nil {
		p.DisplayName = *displayName
	}
	if avatarURL != nil {
		p.AvatarURL = *avatarURL
	}
	if passwordHash != nil {
		p.PasswordHash = *passwordHash
	}
	if stripeCustomerID != nil {
		p.StripeCustomerID = *stripeCustomerID
	}
	return &p, nil
}

// Create inserts a new profile. Returns ErrCodeConflictEmail if a profile
// with the same email already exists (unique constraint on email).
func (r *ProfileRepository) Create(ctx context.Context, profile *types.Profile) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO profiles (id, email, display_name, password_hash, is_premium, created_at)
		 VALUES ($1, $2, $3, $4, false, COALESCE($5, NOW()))`,
		profile.ID,
		profile.Email,
		nilIfEmpty(profile.DisplayName),
		nilIfEmpty(profile.PasswordHash),
		nilIfZeroTime(profile.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.NewAppError(types.ErrCodeConflictEmail, "an account with this email already exists", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create profile", err)
	}
	return nil
}

// GetByID retrieves a profile by its ID.
// Returns ErrCodeNotFoundProfile if no profile exists.
func (r *ProfileRepository) GetByID(ctx context.Context, id string) (*types.Profile, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles p WHERE p.id = $1`,
		id,
	)

	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundProfile, "profile not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve profile", err)
	}
	return p, nil
}

// GetByEmail retrieves a profile by email address. Used by the login flow;
// the caller maps the not-found case to an invalid-credentials error so
// the response does not reveal which emails are registered.
func (r *ProfileRepository) GetByEmail(ctx context.Context, email string) (*types.Profile, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles p WHERE p.email = $1`,
		email,
	)

	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundProfile, "profile not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve profile by email", err)
	}
	return p, nil
}

// GetByStripeCustomerID maps a Stripe customer back to the owning profile.
// Used by the webhook worker when an event carries no account metadata.
func (r *ProfileRepository) GetByStripeCustomerID(ctx context.Context, customerID string) (*types.Profile, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles p WHERE p.stripe_customer_id = $1`,
		customerID,
	)

	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundProfile, "no profile for stripe customer", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve profile by stripe customer", err)
	}
	return p, nil
}

// Update applies changes to the mutable profile fields: display name and
// avatar URL.
func (r *ProfileRepository) Update(ctx context.Context, profile *types.Profile) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE profiles SET display_name = $1, avatar_url = $2, updated_at = NOW()
		 WHERE id = $3`,
		nilIfEmpty(profile.DisplayName),
		nilIfEmpty(profile.AvatarURL),
		profile.ID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update profile", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundProfile, "profile not found", nil)
	}
	return nil
}

// SetStripeCustomerID records the Stripe customer created for this profile.
// Written once, on first checkout.
func (r *ProfileRepository) SetStripeCustomerID(ctx context.Context, accountID, customerID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE profiles SET stripe_customer_id = $1, updated_at = NOW()
		 WHERE id = $2`,
		customerID,
		accountID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to set stripe customer id", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundProfile, "profile not found", nil)
	}
	return nil
}

// GetBillingInfo reads the stripe_customer_id and email for an account.
// An account that has never started checkout returns an empty customer ID.
func (r *ProfileRepository) GetBillingInfo(ctx context.Context, accountID string) (string, string, error) {
	var customerID *string
	var email string
	err := r.db.QueryRow(ctx,
		`SELECT stripe_customer_id, email FROM profiles WHERE id = $1`,
		accountID,
	).Scan(&customerID, &email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", types.NewAppError(types.ErrCodeNotFoundProfile, "profile not found", nil)
		}
		return "", "", types.NewAppError(types.ErrCodeInternalDB, "failed to read billing info", err)
	}
	if customerID == nil {
		return "", email, nil
	}
	return *customerID, email, nil
}

// GetPremiumRecord reads the premium flag and expiry for an account. This is
// the fallback entitlement source when the payment provider is unreachable.
func (r *ProfileRepository) GetPremiumRecord(ctx context.Context, accountID string) (types.PremiumRecord, error) {
	rec := types.PremiumRecord{AccountID: accountID}
	err := r.db.QueryRow(ctx,
		`SELECT is_premium, premium_expires_at FROM profiles WHERE id = $1`,
		accountID,
	).Scan(&rec.IsPremium, &rec.PremiumExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.PremiumRecord{}, types.NewAppError(types.ErrCodeNotFoundProfile, "profile not found", nil)
		}
		return types.PremiumRecord{}, types.NewAppError(types.ErrCodeInternalDB, "failed to read premium record", err)
	}
	return rec, nil
}

// SetPremiumState writes the premium flag and expiry. Idempotent by
// construction: re-applying the same state is a harmless overwrite, which is
// what makes the resolver's concurrent self-heal and downgrade writes safe.
func (r *ProfileRepository) SetPremiumState(ctx context.Context, accountID string, premium bool, expiresAt *time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE profiles SET is_premium = $1, premium_expires_at = $2, updated_at = NOW()
		 WHERE id = $3`,
		premium,
		expiresAt,
		accountID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update premium state", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundProfile, "profile not found", nil)
	}
	return nil
}
