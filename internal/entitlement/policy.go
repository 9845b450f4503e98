// Package entitlement implements the plan-gated resource management core:
// the quota policy table, the pure enforcement checks, and the resolver
// that derives an account's tier from the payment provider with graceful
// degradation to the backing profile record.
package entitlement

import "voyage/internal/types"

// PolicyRegistry defines the authoritative limits for each tier.
// This is the single source of truth for what each plan allows.
type PolicyRegistry interface {
	// PolicyFor returns the quota policy for the given plan tier.
	// For unknown tiers, returns the free policy to fail safely --
	// never fail open to premium.
	PolicyFor(tier types.PlanTier) types.QuotaPolicy
}

// staticPolicyRegistry is a compile-time policy registry backed by an
// in-memory map. It is the standard implementation for production use.
type staticPolicyRegistry struct {
	policies map[types.PlanTier]types.QuotaPolicy
}

// policyDefaults defines the hardcoded per-tier limits:
//
//	| Tier    | Entries | Images/Entry | Pins      | PDF Export | Social Share |
//	|---------|---------|--------------|-----------|------------|--------------|
//	| Free    | 10      | 1            | 2         | No         | Yes          |
//	| Premium | 50      | 8            | unlimited | Yes        | Yes          |
//
// Premium pins use types.Unlimited (0) -- enforcement treats 0 as no limit.
var policyDefaults = map[types.PlanTier]types.QuotaPolicy{
	types.PlanFree: {
		MaxEntries:         10,
		MaxImagesPerEntry:  1,
		MaxPinnedLocations: 2,
		CanExportDocument:  false,
		CanShareSocial:     true,
	},
	types.PlanPremium: {
		MaxEntries:         50,
		MaxImagesPerEntry:  8,
		MaxPinnedLocations: types.Unlimited,
		CanExportDocument:  true,
		CanShareSocial:     true,
	},
}

// freePolicy is cached to avoid map lookups on the fallback path.
var freePolicy = policyDefaults[types.PlanFree]

// NewStaticPolicyRegistry returns a PolicyRegistry backed by the hardcoded
// plan limits. No database or external service is required.
func NewStaticPolicyRegistry() PolicyRegistry {
	// Copy the defaults into a new map so callers cannot mutate the package-level variable.
	m := make(map[types.PlanTier]types.QuotaPolicy, len(policyDefaults))
	for k, v := range policyDefaults {
		m[k] = v
	}
	return &staticPolicyRegistry{policies: m}
}

// PolicyFor returns the quota policy for the given plan tier.
// If the tier is unknown or corrupt, it returns the free policy.
func (r *staticPolicyRegistry) PolicyFor(tier types.PlanTier) types.QuotaPolicy {
	if p, ok := r.policies[tier]; ok {
		return p
	}
	return freePolicy
}
