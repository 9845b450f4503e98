package db

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"voyage/internal/types"
)

func testEvent(status types.SubscriptionStatus) types.SubscriptionEvent {
	periodEnd := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	return types.SubscriptionEvent{
		EventID:              "evt_1",
		EventType:            "customer.subscription.updated",
		AccountID:            "acct_1",
		StripeCustomerID:     "cus_1",
		StripeSubscriptionID: "sub_1",
		Status:               status,
		PriceID:              "price_premium",
		CurrentPeriodEnd:     &periodEnd,
		OccurredAt:           time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestSubscriptionRepository_ApplyEvent_ActiveUpgradesProfile(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepository(db, nil)

	// Upsert accepted.
	db.On("Exec", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return containsSQL(sql, "INSERT INTO subscriptions")
	}), mock.Anything).Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	// Profile sync: expect premium=true with the period end as expiry.
	db.On("Exec", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return containsSQL(sql, "UPDATE profiles")
	}), mock.MatchedBy(func(args []any) bool {
		return args[0] == true && args[1] != nil
	})).Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.ApplyEvent(context.Background(), testEvent(types.SubStatusActive))
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestSubscriptionRepository_ApplyEvent_CanceledDowngradesProfile(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepository(db, nil)

	db.On("Exec", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return containsSQL(sql, "INSERT INTO subscriptions")
	}), mock.Anything).Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	// Downgrade clears the expiry even though the event carries a period end.
	db.On("Exec", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return containsSQL(sql, "UPDATE profiles")
	}), mock.MatchedBy(func(args []any) bool {
		return args[0] == false && args[1] == (*time.Time)(nil)
	})).Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.ApplyEvent(context.Background(), testEvent(types.SubStatusCanceled))
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestSubscriptionRepository_ApplyEvent_StaleEventIsNoOp(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepository(db, nil)

	// Optimistic lock rejected the upsert: zero rows. The profile must NOT
	// be touched, so no second Exec expectation is registered.
	db.On("Exec", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return containsSQL(sql, "INSERT INTO subscriptions")
	}), mock.Anything).Return(pgconn.NewCommandTag("INSERT 0 0"), nil)

	err := repo.ApplyEvent(context.Background(), testEvent(types.SubStatusActive))
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestSubscriptionRepository_ApplyEvent_UnknownProfile(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepository(db, nil)

	db.On("Exec", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return containsSQL(sql, "INSERT INTO subscriptions")
	}), mock.Anything).Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	db.On("Exec", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return containsSQL(sql, "UPDATE profiles")
	}), mock.Anything).Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := repo.ApplyEvent(context.Background(), testEvent(types.SubStatusActive))
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundProfile, appErr.Code)
}

func TestSubscriptionRepository_ApplyEvent_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepository(db, nil)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("timeout"))

	err := repo.ApplyEvent(context.Background(), testEvent(types.SubStatusActive))
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func containsSQL(sql, fragment string) bool {
	return strings.Contains(sql, fragment)
}
