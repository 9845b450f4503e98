package entitlement

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"voyage/internal/types"
)

// SubscriptionChecker is the primary remote entitlement source: the
// payment provider's view of the account's subscription. Treated as
// authoritative when reachable.
type SubscriptionChecker interface {
	// SubscriptionStatus returns the provider-side subscription state for
	// the account. A missing subscription is not an error; it returns
	// SubStatusInactive.
	SubscriptionStatus(ctx context.Context, accountID string) (*types.SubscriptionDetails, error)
}

// PremiumRecordStore is the backing account record: the secondary
// entitlement source and the target of the self-heal and lazy-downgrade
// writes. SetPremiumState is an idempotent upsert keyed by account ID, so
// concurrent duplicate writes are safe without locking.
type PremiumRecordStore interface {
	GetPremiumRecord(ctx context.Context, accountID string) (types.PremiumRecord, error)
	SetPremiumState(ctx context.Context, accountID string, premium bool, expiresAt *time.Time) error
}

// SessionSource supplies the current authenticated account. The production
// implementation reads the Actor placed in the request context by the auth
// middleware; tests inject fixed values.
type SessionSource interface {
	CurrentAccountID(ctx context.Context) string
}

// ContextSession is the standard SessionSource: the account comes from the
// Actor in the request context.
type ContextSession struct{}

// CurrentAccountID returns the authenticated account ID from the context.
func (ContextSession) CurrentAccountID(ctx context.Context) string {
	return types.AccountID(ctx)
}

// ResolutionRecorder receives the outcome of each tier resolution.
// Implementations must be best-effort and never fail the caller. The
// telemetry package's CloudWatch metrics implement this.
type ResolutionRecorder interface {
	RecordTierResolution(ctx context.Context, source string, tier types.PlanTier, duration time.Duration)
}

// Resolution source labels reported to the ResolutionRecorder.
const (
	sourceProvider = "provider"
	sourceRecord   = "record"
)

// ResolverConfig tunes the resolver.
type ResolverConfig struct {
	// RemoteTimeout bounds the primary subscription check. On timeout the
	// resolver falls back to the backing record, identically to a network
	// failure. Default: 5s.
	RemoteTimeout time.Duration
}

// Resolver derives and caches entitlements, one cached state per account.
//
// One Resolver instance lives per application composition (injected, not a
// package-level singleton); the server handles many concurrent sessions,
// so the cache is keyed by account ID and one account's login or logout
// never disturbs another's cached state. Each entry is swapped whole under
// the mutex: tier and policy always update atomically together, never a
// tier from one resolution paired with a policy from a stale one. A
// monotonic request counter discards refresh results that are superseded
// by a newer request before they land.
type Resolver struct {
	checker  SubscriptionChecker
	records  PremiumRecordStore
	registry PolicyRegistry
	session  SessionSource
	clock    types.Clock
	logger   *slog.Logger
	cfg      ResolverConfig

	// Metrics, when set, receives one observation per resolution. Optional;
	// assigned after construction like the chassis metrics collector.
	Metrics ResolutionRecorder

	group singleflight.Group

	// seq numbers refresh requests across all accounts; each cache entry
	// tracks the newest request whose result has landed for its account.
	seq atomic.Uint64

	mu    sync.Mutex
	cache map[string]*cacheEntry
}

// cacheEntry is the per-account cached state plus the sequence number of
// the resolution that produced it.
type cacheEntry struct {
	state   types.ResolvedEntitlement
	applied uint64
}

// NewResolver creates a Resolver. A nil session defaults to ContextSession;
// nil clock and logger default to the real clock and slog.Default.
func NewResolver(
	checker SubscriptionChecker,
	records PremiumRecordStore,
	registry PolicyRegistry,
	session SessionSource,
	clock types.Clock,
	logger *slog.Logger,
	cfg ResolverConfig,
) *Resolver {
	if session == nil {
		session = ContextSession{}
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RemoteTimeout <= 0 {
		cfg.RemoteTimeout = 5 * time.Second
	}
	return &Resolver{
		checker:  checker,
		records:  records,
		registry: registry,
		session:  session,
		clock:    clock,
		logger:   logger,
		cfg:      cfg,
		cache:    make(map[string]*cacheEntry),
	}
}

// Resolve answers "what tier is this account, right now, as best as can be
// determined". If accountID is empty, the current session account is used;
// with no session it fails with auth_not_authenticated -- the only error
// this method returns. Every other failure degrades to the free policy
// with LastError populated.
//
// Resolution order:
//  1. Primary: the provider subscription status. Statuses active and
//     trialing qualify as premium. A premium answer that disagrees with
//     the backing record triggers a best-effort self-heal upgrade write.
//  2. Fallback (primary unreachable or non-premium): the backing record's
//     stored flag plus expiry. A premium record whose expiry has passed is
//     lazily downgraded with a best-effort write before returning free.
//
// At most one backing-store write is issued per call, and a write failure
// never changes the returned tier. The operation is idempotent: two calls
// with no intervening record mutation return the same tier.
func (r *Resolver) Resolve(ctx context.Context, accountID string) (types.ResolvedEntitlement, error) {
	if accountID == "" {
		accountID = r.session.CurrentAccountID(ctx)
	}
	if accountID == "" {
		return types.ResolvedEntitlement{}, types.ErrNotAuthenticated()
	}

	start := time.Now()
	tier, source, lastErr := r.resolveTier(ctx, accountID)
	if r.Metrics != nil {
		r.Metrics.RecordTierResolution(ctx, source, tier, time.Since(start))
	}
	return types.ResolvedEntitlement{
		AccountID:  accountID,
		Tier:       tier,
		Policy:     r.registry.PolicyFor(tier),
		ResolvedAt: r.clock.Now(),
		LastError:  lastErr,
	}, nil
}

// resolveTier runs the two-source derivation. The returned source names
// which backend decided the tier; the error is observability-only and the
// tier is always valid.
func (r *Resolver) resolveTier(ctx context.Context, accountID string) (types.PlanTier, string, error) {
	now := r.clock.Now()

	remoteCtx, cancel := context.WithTimeout(ctx, r.cfg.RemoteTimeout)
	details, primaryErr := r.checker.SubscriptionStatus(remoteCtx, accountID)
	cancel()

	if primaryErr == nil && details != nil && details.Status.QualifiesPremium() {
		r.selfHealUpgrade(ctx, accountID, details, now)
		return types.PlanPremium, sourceProvider, nil
	}

	if primaryErr != nil {
		r.logger.WarnContext(ctx, "primary entitlement source unavailable, falling back to profile record",
			"account_id", accountID,
			"error", primaryErr,
		)
	}

	rec, recErr := r.records.GetPremiumRecord(ctx, accountID)
	if recErr != nil {
		r.logger.ErrorContext(ctx, "backing premium record unavailable, defaulting to free tier",
			"account_id", accountID,
			"error", recErr,
		)
		if primaryErr != nil {
			return types.PlanFree, sourceRecord, primaryErr
		}
		return types.PlanFree, sourceRecord, recErr
	}

	if rec.IsPremium {
		if !rec.Expired(now) {
			return types.PlanPremium, sourceRecord, primaryErr
		}
		// Stored flag says premium but the window has passed: correct the
		// record opportunistically rather than via a background job.
		if err := r.records.SetPremiumState(ctx, accountID, false, nil); err != nil {
			r.logger.WarnContext(ctx, "lazy downgrade write failed",
				"account_id", accountID,
				"error", err,
			)
		} else {
			r.logger.InfoContext(ctx, "lazy downgrade applied",
				"account_id", accountID,
				"expired_at", rec.PremiumExpiresAt,
			)
		}
	}

	return types.PlanFree, sourceRecord, primaryErr
}

// selfHealUpgrade corrects a stale "free" backing record when the provider
// says the account is premium. Best effort: a failed write is logged and
// does not change the returned tier.
func (r *Resolver) selfHealUpgrade(ctx context.Context, accountID string, details *types.SubscriptionDetails, now time.Time) {
	rec, err := r.records.GetPremiumRecord(ctx, accountID)
	if err != nil {
		r.logger.WarnContext(ctx, "could not read premium record for self-heal check",
			"account_id", accountID,
			"error", err,
		)
		return
	}
	if rec.IsPremium && !rec.Expired(now) {
		return // record already agrees
	}
	if err := r.records.SetPremiumState(ctx, accountID, true, details.CurrentPeriodEnd); err != nil {
		r.logger.WarnContext(ctx, "self-heal upgrade write failed",
			"account_id", accountID,
			"error", err,
		)
		return
	}
	r.logger.InfoContext(ctx, "self-heal upgrade applied",
		"account_id", accountID,
		"period_end", details.CurrentPeriodEnd,
	)
}

// Refresh re-derives the entitlement for the current session account and
// replaces the cached state. It is safe to call concurrently from
// independent triggers (route entry, post-checkout return, manual retry):
// concurrent refreshes for the same account collapse onto the in-flight
// resolution, and a result that arrives after a newer request has already
// landed is discarded, so the cache never holds a mixed or regressed state.
func (r *Resolver) Refresh(ctx context.Context) (types.ResolvedEntitlement, error) {
	accountID := r.session.CurrentAccountID(ctx)
	if accountID == "" {
		return types.ResolvedEntitlement{}, types.ErrNotAuthenticated()
	}

	seq := r.seq.Add(1)

	v, err, _ := r.group.Do(accountID, func() (any, error) {
		// Collapsed callers share this one resolution; detach it from the
		// initiating request so its cancellation cannot degrade the others.
		st, err := r.Resolve(context.WithoutCancel(ctx), accountID)
		if err != nil {
			return nil, err
		}
		return st, nil
	})
	if err != nil {
		return types.ResolvedEntitlement{}, err
	}

	st := v.(types.ResolvedEntitlement)
	r.store(accountID, st, seq)
	return st, nil
}

// store applies a resolution result to the account's cache entry if no
// newer request has already landed (compare-and-swap on the monotonic
// request counter).
func (r *Resolver) store(accountID string, st types.ResolvedEntitlement, seq uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.cache[accountID]; ok && seq <= entry.applied {
		return
	}
	r.cache[accountID] = &cacheEntry{state: st, applied: seq}
}

// Current returns the cached entitlement for the account, if any.
// Enforcement checks read this synchronously and accept that it may be
// momentarily stale right after a tier change, until the in-flight refresh
// lands.
func (r *Resolver) Current(accountID string) (types.ResolvedEntitlement, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.cache[accountID]
	if !ok {
		return types.ResolvedEntitlement{}, false
	}
	return entry.state, true
}

// Snapshot returns the cached entitlement for the session account,
// resolving on the account's first access. This is the entry point
// enforcement call sites use.
func (r *Resolver) Snapshot(ctx context.Context) (types.ResolvedEntitlement, error) {
	accountID := r.session.CurrentAccountID(ctx)
	if accountID == "" {
		return types.ResolvedEntitlement{}, types.ErrNotAuthenticated()
	}
	if st, ok := r.Current(accountID); ok {
		return st, nil
	}
	return r.Refresh(ctx)
}

// Invalidate discards the cached state for one account. Called on login
// and logout so the account's next gated request derives fresh; other
// accounts' entries are untouched.
func (r *Resolver) Invalidate(accountID string) {
	if accountID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, accountID)
}
