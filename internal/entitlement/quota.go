package entitlement

import "voyage/internal/types"

// CheckQuota decides whether adding requestedDelta items of the given
// resource kind is allowed under the policy, given the caller-supplied
// current count. It is pure and synchronous: it never suspends, never
// errors, and reads whatever entitlement snapshot the caller holds.
//
// Numeric kinds compare current+delta against the limit; a limit of
// types.Unlimited always allows. Boolean-gated kinds (document export,
// social share) ignore the counts and answer from the policy flag alone.
//
// Enforcement is advisory-but-mandatory at the boundary: the component
// performing the mutation MUST call CheckQuota before mutating and MUST
// abort entirely when Allowed is false. This function only decides; it
// never navigates or renders.
func CheckQuota(kind types.ResourceKind, currentCount, requestedDelta int, policy types.QuotaPolicy) types.Decision {
	if !kind.Numeric() {
		allowed := featureAllowed(kind, policy)
		d := types.Decision{Allowed: allowed, Remaining: -1}
		if !allowed {
			d.Reason = types.ReasonEntitlement
		}
		return d
	}

	limit := numericLimit(kind, policy)
	if limit == types.Unlimited {
		return types.Decision{Allowed: true, Remaining: -1}
	}

	if currentCount+requestedDelta > limit {
		remaining := limit - currentCount
		if remaining < 0 {
			remaining = 0
		}
		return types.Decision{Allowed: false, Reason: types.ReasonQuota, Remaining: remaining}
	}
	return types.Decision{Allowed: true, Remaining: limit - currentCount - requestedDelta}
}

// ClipBatch returns how many items of a batch may be processed under the
// policy. Multi-item operations (dropping five photos with one slot left)
// clip to the leading allowed subset in original order rather than
// rejecting the whole batch; the remainder is silently dropped with no
// partial-item corruption.
func ClipBatch(kind types.ResourceKind, currentCount, batchLen int, policy types.QuotaPolicy) int {
	if batchLen <= 0 {
		return 0
	}
	if !kind.Numeric() {
		if featureAllowed(kind, policy) {
			return batchLen
		}
		return 0
	}
	limit := numericLimit(kind, policy)
	if limit == types.Unlimited {
		return batchLen
	}
	remaining := limit - currentCount
	if remaining <= 0 {
		return 0
	}
	if batchLen < remaining {
		return batchLen
	}
	return remaining
}

// numericLimit maps a numeric resource kind to its policy limit.
// Unknown kinds map to -1, which no count can satisfy (0 would mean
// unlimited), so they are never allowed.
func numericLimit(kind types.ResourceKind, policy types.QuotaPolicy) int {
	switch kind {
	case types.ResourceEntries:
		return policy.MaxEntries
	case types.ResourcePins:
		return policy.MaxPinnedLocations
	case types.ResourceImages:
		return policy.MaxImagesPerEntry
	}
	return -1
}

// featureAllowed maps a boolean-gated resource kind to its policy flag.
// Unknown kinds are denied (fail closed).
func featureAllowed(kind types.ResourceKind, policy types.QuotaPolicy) bool {
	switch kind {
	case types.ResourceDocumentExport:
		return policy.CanExportDocument
	case types.ResourceSocialShare:
		return policy.CanShareSocial
	}
	return false
}

// LimitErrorCode maps a denied numeric resource kind to the API error code
// handlers surface for it. Boolean-gated denials map to the entitlement
// code regardless of kind.
func LimitErrorCode(kind types.ResourceKind, reason types.DecisionReason) types.ErrorCode {
	if reason == types.ReasonEntitlement {
		return types.ErrCodeFeatureNotEntitled
	}
	switch kind {
	case types.ResourceEntries:
		return types.ErrCodeLimitEntries
	case types.ResourceImages:
		return types.ErrCodeLimitImages
	case types.ResourcePins:
		return types.ErrCodeLimitPins
	}
	return types.ErrCodeFeatureNotEntitled
}
