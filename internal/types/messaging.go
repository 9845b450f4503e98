package types

import "time"

// SubscriptionEvent is the message the API enqueues after verifying a
// Stripe webhook, and the webhook worker consumes. It carries only the
// fields the worker needs to apply the state change; the raw provider
// payload never crosses the queue.
type SubscriptionEvent struct {
	EventID              string             `json:"event_id"`
	EventType            string             `json:"event_type"`
	AccountID            string             `json:"account_id"`
	StripeCustomerID     string             `json:"stripe_customer_id"`
	StripeSubscriptionID string             `json:"stripe_subscription_id"`
	Status               SubscriptionStatus `json:"status"`
	PriceID              string             `json:"price_id,omitempty"`
	CurrentPeriodEnd     *time.Time         `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd    bool               `json:"cancel_at_period_end"`
	// OccurredAt is the provider's event timestamp. The worker uses it for
	// optimistic locking so out-of-order deliveries cannot regress state.
	OccurredAt time.Time `json:"occurred_at"`
	TraceID    string    `json:"trace_id,omitempty"`
}
