package types

import "time"

// Profile is the backing account record. It carries the persisted premium
// flag and expiry that serve as the fallback entitlement source when the
// payment provider is unreachable, and the Stripe customer ID used to
// correlate subscriptions.
type Profile struct {
	ID               string     `json:"id" db:"id"`
	Email            string     `json:"email" db:"email"`
	DisplayName      string     `json:"display_name,omitempty" db:"display_name"`
	AvatarURL        string     `json:"avatar_url,omitempty" db:"avatar_url"`
	PasswordHash     string     `json:"-" db:"password_hash"`
	IsPremium        bool       `json:"is_premium" db:"is_premium"`
	PremiumExpiresAt *time.Time `json:"premium_expires_at,omitempty" db:"premium_expires_at"`
	StripeCustomerID string     `json:"-" db:"stripe_customer_id"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// PremiumRecord is the minimal slice of the profile the entitlement
// resolver reads and writes: the stored flag plus its expiry.
type PremiumRecord struct {
	AccountID        string
	IsPremium        bool
	PremiumExpiresAt *time.Time
}

// Expired reports whether a premium record's validity window has passed.
// A nil expiry on a premium record counts as expired: the record cannot
// vouch for itself without a bound.
func (r PremiumRecord) Expired(now time.Time) bool {
	return r.PremiumExpiresAt == nil || !r.PremiumExpiresAt.After(now)
}

// Voyage is the core journal entry: a trip with a location, date range,
// rating, notes, and attached photos.
type Voyage struct {
	ID        string     `json:"id" db:"id"`
	OwnerID   string     `json:"owner_id" db:"owner_id"`
	Title     string     `json:"title" db:"title"`
	Location  string     `json:"location" db:"location"`
	Latitude  *float64   `json:"latitude,omitempty" db:"latitude"`
	Longitude *float64   `json:"longitude,omitempty" db:"longitude"`
	StartDate time.Time  `json:"start_date" db:"start_date"`
	EndDate   time.Time  `json:"end_date" db:"end_date"`
	Rating    Rating     `json:"rating" db:"rating"`
	Notes     string     `json:"notes,omitempty" db:"notes"`
	ImageURLs []string   `json:"image_urls" db:"image_urls"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time `json:"-" db:"deleted_at"`
}

// PinnedLocation is a map pin attached to a voyage.
type PinnedLocation struct {
	ID        string    `json:"id" db:"id"`
	VoyageID  string    `json:"voyage_id" db:"voyage_id"`
	OwnerID   string    `json:"owner_id" db:"owner_id"`
	Label     string    `json:"label" db:"label"`
	Latitude  float64   `json:"latitude" db:"latitude"`
	Longitude float64   `json:"longitude" db:"longitude"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// SubscriptionRecord mirrors the provider's subscription state locally.
// It is written only by the webhook worker and the opportunistic sync path;
// reads treat the provider as authoritative when reachable.
type SubscriptionRecord struct {
	ID                   string             `json:"id" db:"id"`
	AccountID            string             `json:"account_id" db:"account_id"`
	StripeSubscriptionID string             `json:"-" db:"stripe_subscription_id"`
	StripeCustomerID     string             `json:"-" db:"stripe_customer_id"`
	Status               SubscriptionStatus `json:"status" db:"status"`
	PriceID              string             `json:"price_id,omitempty" db:"price_id"`
	CurrentPeriodEnd     *time.Time         `json:"current_period_end,omitempty" db:"current_period_end"`
	CancelAtPeriodEnd    bool               `json:"cancel_at_period_end" db:"cancel_at_period_end"`
	LastEventAt          *time.Time         `json:"-" db:"last_event_at"`
	UpdatedAt            time.Time          `json:"updated_at" db:"updated_at"`
}

// Session represents an authenticated account session. The raw token is
// never stored; TokenHash holds its SHA-256 digest.
type Session struct {
	ID        string    `json:"id" db:"id"`
	AccountID string    `json:"account_id" db:"account_id"`
	TokenHash string    `json:"-" db:"token_hash"`
	UserAgent string    `json:"user_agent,omitempty" db:"user_agent"`
	IPAddress string    `json:"ip_address,omitempty" db:"ip_address"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ShareLink is a public, tokenized pointer to a voyage, created by the
// social-share feature.
type ShareLink struct {
	Token     string    `json:"token" db:"token"`
	VoyageID  string    `json:"voyage_id" db:"voyage_id"`
	OwnerID   string    `json:"owner_id" db:"owner_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// RedirectURLs guides the user back from the provider's hosted checkout.
type RedirectURLs struct {
	Success string
	Cancel  string
}

// SubscriptionDetails is the provider-side subscription view returned by
// the billing API, independent of the locally mirrored record.
type SubscriptionDetails struct {
	Status            SubscriptionStatus `json:"status"`
	PriceID           string             `json:"price_id,omitempty"`
	CurrentPeriodEnd  *time.Time         `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd bool               `json:"cancel_at_period_end"`
}
