package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voyage/internal/types"
)

type fakeSQS struct {
	inputs  []*sqs.SendMessageInput
	sendErr error
}

func (f *fakeSQS) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &sqs.SendMessageOutput{}, nil
}

func testEvent() types.SubscriptionEvent {
	end := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	return types.SubscriptionEvent{
		EventID:              "evt_1",
		EventType:            "customer.subscription.updated",
		AccountID:            "acct_1",
		StripeCustomerID:     "cus_1",
		StripeSubscriptionID: "sub_1",
		Status:               types.SubStatusActive,
		PriceID:              "price_premium_monthly",
		CurrentPeriodEnd:     &end,
		OccurredAt:           time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestPublisher_Publish_SerializesEvent(t *testing.T) {
	client := &fakeSQS{}
	pub := NewSubscriptionEventPublisher(client, "https://sqs.test/subscription-events", slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, pub.Publish(context.Background(), testEvent()))
	require.Len(t, client.inputs, 1)

	input := client.inputs[0]
	assert.Equal(t, "https://sqs.test/subscription-events", *input.QueueUrl)

	var decoded types.SubscriptionEvent
	require.NoError(t, json.Unmarshal([]byte(*input.MessageBody), &decoded))
	assert.Equal(t, "evt_1", decoded.EventID)
	assert.Equal(t, "acct_1", decoded.AccountID)
	assert.Equal(t, types.SubStatusActive, decoded.Status)
	require.NotNil(t, decoded.CurrentPeriodEnd)

	assert.Equal(t, "customer.subscription.updated", *input.MessageAttributes["event_type"].StringValue)
}

func TestPublisher_Publish_TraceIDFromContext(t *testing.T) {
	client := &fakeSQS{}
	pub := NewSubscriptionEventPublisher(client, "https://sqs.test/q", slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx := types.WithRequestID(context.Background(), "trace-9")
	ev := testEvent()
	ev.TraceID = ""

	require.NoError(t, pub.Publish(ctx, ev))
	require.Len(t, client.inputs, 1)
	assert.Equal(t, "trace-9", *client.inputs[0].MessageAttributes["trace_id"].StringValue)
}

func TestPublisher_Publish_SendError(t *testing.T) {
	client := &fakeSQS{sendErr: errors.New("sqs unavailable")}
	pub := NewSubscriptionEventPublisher(client, "https://sqs.test/q", slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := pub.Publish(context.Background(), testEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqs unavailable")
}
