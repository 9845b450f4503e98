package types

import "time"

// Unlimited is the sentinel value for numeric quota limits that have no
// bound. Enforcement code must treat it as "always allowed".
const Unlimited = 0

// QuotaPolicy defines the resource limits attached to a plan tier.
// The table of policies is constant and defined at build time; only the
// selection of which row applies to an account changes at runtime.
type QuotaPolicy struct {
	MaxEntries         int  `json:"max_entries"`
	MaxImagesPerEntry  int  `json:"max_images_per_entry"`
	MaxPinnedLocations int  `json:"max_pinned_locations"` // Unlimited (0) = no bound
	CanExportDocument  bool `json:"can_export_document"`
	CanShareSocial     bool `json:"can_share_social"`
}

// DecisionReason distinguishes why a quota check denied an operation, so
// callers can present different remediation (upgrade prompt vs. limit notice).
type DecisionReason string

const (
	// ReasonQuota means a numeric limit would be exceeded.
	ReasonQuota DecisionReason = "quota"
	// ReasonEntitlement means the feature is not included in the tier.
	ReasonEntitlement DecisionReason = "entitlement"
)

// Decision is the outcome of a quota check. It is a plain value, never an
// error: exceeding a quota is a normal, expected outcome.
type Decision struct {
	Allowed bool           `json:"allowed"`
	Reason  DecisionReason `json:"reason,omitempty"`
	// Remaining is the number of additional items the caller may still
	// create, after the requested delta if allowed. -1 for unlimited and
	// for boolean-gated resources.
	Remaining int `json:"remaining"`
}

// ResolvedEntitlement is the per-session cached entitlement state: the
// tier and its policy, resolved together so a reader can never observe a
// tier paired with a stale policy.
type ResolvedEntitlement struct {
	AccountID  string      `json:"account_id"`
	Tier       PlanTier    `json:"tier"`
	Policy     QuotaPolicy `json:"policy"`
	ResolvedAt time.Time   `json:"resolved_at"`
	// LastError records the most recent resolution failure for
	// observability. A populated LastError with Tier=free means the
	// resolver degraded rather than failed.
	LastError error `json:"-"`
}
