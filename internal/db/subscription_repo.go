package db

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"voyage/internal/types"
)

// SubscriptionRepository manages the local mirror of Stripe subscription
// state and keeps the profile premium flag in sync with it.
//
// Key invariant: ApplyEvent uses optimistic locking via last_event_at so
// out-of-order webhook deliveries cannot regress state. A stale or duplicate
// event is a silent no-op, which makes at-least-once queue delivery safe.
type SubscriptionRepository struct {
	db     DBTX
	logger *slog.Logger
}

// NewSubscriptionRepository creates a new SubscriptionRepository backed by
// the given database connection (pool or transaction).
func NewSubscriptionRepository(db DBTX, logger *slog.Logger) *SubscriptionRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionRepository{db: db, logger: logger}
}

// ApplyEvent upserts the subscription row for a webhook event and, when the
// event is accepted, propagates the resulting premium state to the profile.
//
// The upsert's WHERE clause enforces the optimistic lock: the update only
// applies when this event is newer than the last one recorded. RowsAffected
// distinguishes "applied" from "stale"; stale events return nil so the queue
// consumer acks instead of retrying forever.
func (r *SubscriptionRepository) ApplyEvent(ctx context.Context, ev types.SubscriptionEvent) error {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO subscriptions (id, account_id, stripe_subscription_id, stripe_customer_id,
		     status, price_id, current_period_end, cancel_at_period_end, last_event_at, updated_at)
		 VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, NOW())
		 ON CONFLICT (stripe_subscription_id) DO UPDATE
		 SET status = EXCLUDED.status,
		     price_id = EXCLUDED.price_id,
		     current_period_end = EXCLUDED.current_period_end,
		     cancel_at_period_end = EXCLUDED.cancel_at_period_end,
		     last_event_at = EXCLUDED.last_event_at,
		     updated_at = NOW()
		 WHERE subscriptions.last_event_at IS NULL
		    OR subscriptions.last_event_at < EXCLUDED.last_event_at`,
		ev.AccountID,
		ev.StripeSubscriptionID,
		ev.StripeCustomerID,
		ev.Status,
		nilIfEmpty(ev.PriceID),
		ev.CurrentPeriodEnd,
		ev.CancelAtPeriodEnd,
		ev.OccurredAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to apply subscription event", err)
	}

	if tag.RowsAffected() == 0 {
		// Event is older than or equal to what we already have -- idempotent no-op.
		r.logger.InfoContext(ctx, "stale subscription event ignored (optimistic lock)",
			"event_id", ev.EventID,
			"account_id", ev.AccountID,
			"occurred_at", ev.OccurredAt,
		)
		return nil
	}

	// Propagate the accepted state to the profile so the entitlement
	// fallback path agrees with the provider.
	premium := ev.Status.QualifiesPremium()
	expiresAt := ev.CurrentPeriodEnd
	if !premium {
		expiresAt = nil
	}
	profileTag, err := r.db.Exec(ctx,
		`UPDATE profiles SET is_premium = $1, premium_expires_at = $2, updated_at = NOW()
		 WHERE id = $3`,
		premium,
		expiresAt,
		ev.AccountID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to sync profile premium state", err)
	}
	if profileTag.RowsAffected() == 0 {
		r.logger.ErrorContext(ctx, "subscription event references unknown profile",
			"event_id", ev.EventID,
			"account_id", ev.AccountID,
		)
		return types.NewAppError(types.ErrCodeNotFoundProfile, "profile not found for subscription event", nil)
	}

	return nil
}

// GetByAccountID retrieves the mirrored subscription for an account.
func (r *SubscriptionRepository) GetByAccountID(ctx context.Context, accountID string) (*types.SubscriptionRecord, error) {
	var s types.SubscriptionRecord
	var priceID *string
	err := r.db.QueryRow(ctx,
		`SELECT id, account_id, stripe_subscription_id, stripe_customer_id, status,
		        price_id, current_period_end, cancel_at_period_end, last_event_at, updated_at
		 FROM subscriptions
		 WHERE account_id = $1
		 ORDER BY updated_at DESC
		 LIMIT 1`,
		accountID,
	).Scan(
		&s.ID,
		&s.AccountID,
		&s.StripeSubscriptionID,
		&s.StripeCustomerID,
		&s.Status,
		&priceID,
		&s.CurrentPeriodEnd,
		&s.CancelAtPeriodEnd,
		&s.LastEventAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // no subscription on file is not an error
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve subscription", err)
	}
	if priceID != nil {
		s.PriceID = *priceID
	}
	return &s, nil
}
