// Package main is the entrypoint for the subscription worker Lambda.
//
// The worker consumes subscription events from the SQS queue fed by the
// Stripe webhook endpoint and applies them to the database. The API stays
// fast and always acks Stripe after signature verification; this worker owns
// the actual state change, with SQS redrive handling transient failures.
//
// Lambda SQS integration uses partial batch responses: messages that fail
// processing are returned in batchItemFailures so SQS retries only those.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"voyage/internal/config"
	"voyage/internal/db"
	"voyage/internal/types"
)

// EventApplier applies a subscription event to durable storage.
// Implemented by db.SubscriptionRepository; injected for testability.
type EventApplier interface {
	ApplyEvent(ctx context.Context, ev types.SubscriptionEvent) error
}

// Handler holds the dependencies for the subscription worker Lambda handler.
type Handler struct {
	subscriptions EventApplier
	logger        *slog.Logger
}

// NewHandler creates a worker handler. If logger is nil, slog.Default() is used.
func NewHandler(subscriptions EventApplier, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{subscriptions: subscriptions, logger: logger}
}

// Handle processes an SQS event containing one or more subscription events.
// Each record is processed independently; failures are reported per-message
// so a single bad record does not block the batch.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.ErrorContext(ctx, "failed to process subscription event",
				"message_id", record.MessageId,
				"error", err,
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}

// processRecord applies a single queued subscription event.
func (h *Handler) processRecord(ctx context.Context, record events.SQSMessage) error {
	var ev types.SubscriptionEvent
	if err := json.Unmarshal([]byte(record.Body), &ev); err != nil {
		// Malformed payloads never become valid; log and ack so SQS does
		// not redeliver them until the DLQ.
		h.logger.ErrorContext(ctx, "dropping malformed subscription event",
			"message_id", record.MessageId,
			"error", err,
		)
		return nil
	}

	if ev.AccountID == "" || ev.StripeSubscriptionID == "" {
		h.logger.ErrorContext(ctx, "dropping subscription event with missing identifiers",
			"message_id", record.MessageId,
			"event_id", ev.EventID,
		)
		return nil
	}

	logger := h.logger.With(
		"event_id", ev.EventID,
		"event_type", ev.EventType,
		"account_id", ev.AccountID,
		"status", string(ev.Status),
	)

	if err := h.subscriptions.ApplyEvent(ctx, ev); err != nil {
		return fmt.Errorf("applying subscription event %s: %w", ev.EventID, err)
	}

	logger.InfoContext(ctx, "subscription event applied")
	return nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect database", "error", err)
		os.Exit(1)
	}

	handler := NewHandler(db.NewSubscriptionRepository(pool, logger), logger)

	logger.Info("subscription worker initialized",
		"environment", cfg.Environment,
		"queue", cfg.AWS.SubscriptionQueue,
	)

	lambda.Start(handler.Handle)
}
