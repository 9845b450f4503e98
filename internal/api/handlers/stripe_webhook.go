package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"voyage/internal/core"
	"voyage/internal/types"
)

// maxWebhookBodySize bounds webhook payloads. Stripe events are small;
// anything larger is hostile.
const maxWebhookBodySize = 64 * 1024

// WebhookVerifier validates the Stripe-Signature header against the raw
// payload.
type WebhookVerifier interface {
	Verify(payload []byte, header string, secret string) error
}

// SubscriptionEventSink receives verified subscription events for
// asynchronous processing. The SQS publisher implements this.
type SubscriptionEventSink interface {
	Publish(ctx context.Context, ev types.SubscriptionEvent) error
}

// WebhookAccountMapper correlates Stripe customers with local accounts.
type WebhookAccountMapper interface {
	GetByStripeCustomerID(ctx context.Context, customerID string) (*types.Profile, error)
	SetStripeCustomerID(ctx context.Context, accountID, customerID string) error
}

// stripeWebhookEvent is the minimal envelope we parse from a webhook
// payload. Only the fields we route on are decoded; the nested object stays
// raw until the event type is known.
type stripeWebhookEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type stripeCheckoutObject struct {
	ClientReferenceID string `json:"client_reference_id"`
	Customer          string `json:"customer"`
}

type stripeSubscriptionObject struct {
	ID                string            `json:"id"`
	Customer          string            `json:"customer"`
	Status            string            `json:"status"`
	CancelAtPeriodEnd bool              `json:"cancel_at_period_end"`
	CurrentPeriodEnd  int64             `json:"current_period_end"`
	Metadata          map[string]string `json:"metadata"`
	Items             struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

// StripeWebhookHandler receives Stripe webhooks, verifies their signature,
// and enqueues subscription events for the worker. The endpoint does no
// subscription state writes of its own: verify, enqueue, ack.
//
// Processing failures after verification still return 200 so Stripe does
// not retry an event we have already logged; the DLQ covers genuine losses.
type StripeWebhookHandler struct {
	verifier WebhookVerifier
	sink     SubscriptionEventSink
	accounts WebhookAccountMapper
	secret   types.SecretString
	logger   *slog.Logger
}

// NewStripeWebhookHandler creates a StripeWebhookHandler.
func NewStripeWebhookHandler(
	verifier WebhookVerifier,
	sink SubscriptionEventSink,
	accounts WebhookAccountMapper,
	secret types.SecretString,
	l *slog.Logger,
) *StripeWebhookHandler {
	if l == nil {
		l = slog.Default()
	}
	return &StripeWebhookHandler{
		verifier: verifier,
		sink:     sink,
		accounts: accounts,
		secret:   secret,
		logger:   l,
	}
}

// RegisterRoutes mounts the webhook route on the provided chi.Router. The
// route is public; authenticity comes from the signature, not a session.
func (h *StripeWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/stripe", h.HandleWebhook)
}

// HandleWebhook handles POST /v1/webhooks/stripe.
func (h *StripeWebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodySize))
	if err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "failed to read webhook payload", err))
		return
	}

	if err := h.verifier.Verify(payload, r.Header.Get("Stripe-Signature"), h.secret.Unmask()); err != nil {
		h.logger.WarnContext(r.Context(), "webhook signature verification failed", "error", err)
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid webhook signature", err))
		return
	}

	var event stripeWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "malformed webhook payload", err))
		return
	}

	switch event.Type {
	case "checkout.session.completed":
		h.handleCheckoutCompleted(r.Context(), &event)
	case "customer.subscription.created",
		"customer.subscription.updated",
		"customer.subscription.deleted":
		h.handleSubscriptionChange(r.Context(), &event)
	default:
		h.logger.DebugContext(r.Context(), "ignoring webhook event", "type", event.Type)
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]string{"received": event.ID}})
}

// handleCheckoutCompleted binds the Stripe customer to the account that
// started checkout. The subscription events that follow carry only the
// customer ID, so this binding is what makes them attributable.
func (h *StripeWebhookHandler) handleCheckoutCompleted(ctx context.Context, event *stripeWebhookEvent) {
	var obj stripeCheckoutObject
	if err := json.Unmarshal(event.Data.Object, &obj); err != nil {
		h.logger.ErrorContext(ctx, "failed to parse checkout session object",
			"event_id", event.ID,
			"error", err,
		)
		return
	}

	if obj.ClientReferenceID == "" || obj.Customer == "" {
		h.logger.WarnContext(ctx, "checkout session missing correlation fields",
			"event_id", event.ID,
		)
		return
	}

	if err := h.accounts.SetStripeCustomerID(ctx, obj.ClientReferenceID, obj.Customer); err != nil {
		h.logger.ErrorContext(ctx, "failed to bind stripe customer to account",
			"event_id", event.ID,
			"account_id", obj.ClientReferenceID,
			"error", err,
		)
		return
	}

	h.logger.InfoContext(ctx, "stripe customer bound to account",
		"event_id", event.ID,
		"account_id", obj.ClientReferenceID,
	)
}

// handleSubscriptionChange converts a subscription lifecycle event into a
// SubscriptionEvent and enqueues it. The account is identified by the
// subscription's metadata when present, otherwise by the customer binding.
func (h *StripeWebhookHandler) handleSubscriptionChange(ctx context.Context, event *stripeWebhookEvent) {
	var obj stripeSubscriptionObject
	if err := json.Unmarshal(event.Data.Object, &obj); err != nil {
		h.logger.ErrorContext(ctx, "failed to parse subscription object",
			"event_id", event.ID,
			"error", err,
		)
		return
	}

	accountID := obj.Metadata["account_id"]
	if accountID == "" {
		profile, err := h.accounts.GetByStripeCustomerID(ctx, obj.Customer)
		if err != nil {
			h.logger.ErrorContext(ctx, "cannot attribute subscription event to an account",
				"event_id", event.ID,
				"customer_id", obj.Customer,
				"error", err,
			)
			return
		}
		accountID = profile.ID
	}

	ev := types.SubscriptionEvent{
		EventID:              event.ID,
		EventType:            event.Type,
		AccountID:            accountID,
		StripeCustomerID:     obj.Customer,
		StripeSubscriptionID: obj.ID,
		Status:               types.SubscriptionStatus(obj.Status),
		CancelAtPeriodEnd:    obj.CancelAtPeriodEnd,
		OccurredAt:           time.Unix(event.Created, 0).UTC(),
	}
	if event.Type == "customer.subscription.deleted" {
		ev.Status = types.SubStatusCanceled
	}
	if len(obj.Items.Data) > 0 {
		ev.PriceID = obj.Items.Data[0].Price.ID
	}
	if obj.CurrentPeriodEnd > 0 {
		end := time.Unix(obj.CurrentPeriodEnd, 0).UTC()
		ev.CurrentPeriodEnd = &end
	}

	if err := h.sink.Publish(ctx, ev); err != nil {
		h.logger.ErrorContext(ctx, "failed to enqueue subscription event",
			"event_id", event.ID,
			"account_id", accountID,
			"error", err,
		)
		return
	}
}
