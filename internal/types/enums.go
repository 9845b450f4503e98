package types

// PlanTier identifies the billing tier of an account.
// The client never stores a tier as ground truth; it is always re-derived
// from the subscription provider or the backing profile record.
type PlanTier string

const (
	PlanFree    PlanTier = "free"
	PlanPremium PlanTier = "premium"
)

// SubscriptionStatus represents the state of a billing subscription as
// reported by the payment provider.
type SubscriptionStatus string

const (
	SubStatusActive            SubscriptionStatus = "active"
	SubStatusTrialing          SubscriptionStatus = "trialing"
	SubStatusPastDue           SubscriptionStatus = "past_due"
	SubStatusCanceled          SubscriptionStatus = "canceled"
	SubStatusIncomplete        SubscriptionStatus = "incomplete"
	SubStatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubStatusUnpaid            SubscriptionStatus = "unpaid"
	// SubStatusInactive is the synthetic status returned when the provider
	// has no subscription on file for the account.
	SubStatusInactive SubscriptionStatus = "inactive"
)

// QualifiesPremium reports whether this subscription status grants the
// premium tier. Only active and trialing subscriptions qualify; past_due
// accounts keep premium until the provider cancels, but that decision is
// the provider's, delivered via webhook, not inferred here.
func (s SubscriptionStatus) QualifiesPremium() bool {
	return s == SubStatusActive || s == SubStatusTrialing
}

// ResourceKind identifies a quota-guarded resource.
type ResourceKind string

const (
	ResourceEntries        ResourceKind = "entries"
	ResourceImages         ResourceKind = "images"
	ResourcePins           ResourceKind = "pins"
	ResourceDocumentExport ResourceKind = "document_export"
	ResourceSocialShare    ResourceKind = "social_share"
)

// Numeric reports whether the resource kind is governed by a numeric limit
// (as opposed to a boolean feature gate).
func (k ResourceKind) Numeric() bool {
	switch k {
	case ResourceEntries, ResourceImages, ResourcePins:
		return true
	}
	return false
}

// Rating is a 1-5 star rating attached to a voyage entry.
type Rating int

// Valid reports whether the rating is within the accepted 1-5 range.
// Zero means "not rated" and is valid on entries, invalid as an explicit value.
func (r Rating) Valid() bool {
	return r >= 1 && r <= 5
}
