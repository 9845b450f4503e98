// Package queue provides the SQS producer that hands verified subscription
// events from the API to the webhook worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"voyage/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SubscriptionEventPublisher serializes SubscriptionEvents and sends them to
// the subscription events queue. The webhook endpoint stays fast and
// idempotent: verify, enqueue, ack; the worker applies the state change.
type SubscriptionEventPublisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewSubscriptionEventPublisher creates a publisher for the given queue URL.
func NewSubscriptionEventPublisher(client SQSSender, queueURL string, logger *slog.Logger) *SubscriptionEventPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionEventPublisher{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
	}
}

// Publish sends a SubscriptionEvent to the queue. The event's TraceID is
// attached as a message attribute so worker logs correlate with the API
// request that received the webhook.
func (p *SubscriptionEventPublisher) Publish(ctx context.Context, ev types.SubscriptionEvent) error {
	if ev.TraceID == "" {
		ev.TraceID = types.GetRequestID(ctx)
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal SubscriptionEvent: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"event_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(ev.EventType),
			},
			"trace_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(ev.TraceID),
			},
		},
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: failed to send SubscriptionEvent to %s: %w", p.queueURL, err)
	}

	p.logger.InfoContext(ctx, "subscription event enqueued",
		"queue_url", p.queueURL,
		"event_id", ev.EventID,
		"event_type", ev.EventType,
		"account_id", ev.AccountID,
		"trace_id", ev.TraceID,
	)

	return nil
}
