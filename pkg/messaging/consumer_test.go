package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medflow/pharmacy-backend/pkg/logger"
)

type fakeAck struct {
	acked    int
	nacked   int
	requeued bool
	rejected int
}

func (f *fakeAck) Ack(uint64, bool) error { f.acked++; return nil }
func (f *fakeAck) Nack(_ uint64, _ bool, requeue bool) error {
	f.nacked++
	f.requeued = requeue
	return nil
}
func (f *fakeAck) Reject(uint64, bool) error { f.rejected++; return nil }

func delivery(t *testing.T, ack *fakeAck, eventType string, headers amqp.Table) amqp.Delivery {
	t.Helper()
	event, err := NewEvent(eventType, "prescription-service", "corr-1", FulfillmentRequestedEvent{
		RequestID: "rx-1:1",
		ProductID: "amoxicillin-500",
		Quantity:  2,
	})
	require.NoError(t, err)
	body, err := json.Marshal(event)
	require.NoError(t, err)
	return amqp.Delivery{Acknowledger: ack, Headers: headers, Body: body, ContentType: "application/json"}
}

func TestConsumer_HandleMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("success acks and passes payload", func(t *testing.T) {
		c := newConsumer("pharmacy.fulfillment", logger.Nop())
		var got FulfillmentRequestedEvent
		c.RegisterHandler(EventFulfillmentRequested, func(ctx context.Context, e *Event) error {
			assert.Equal(t, "corr-1", CorrelationID(ctx))
			return e.UnmarshalData(&got)
		})

		ack := &fakeAck{}
		c.handleMessage(ctx, delivery(t, ack, EventFulfillmentRequested, nil))

		assert.Equal(t, 1, ack.acked)
		assert.Equal(t, "rx-1:1", got.RequestID)
		assert.Equal(t, 2, got.Quantity)
	})

	t.Run("malformed body is rejected", func(t *testing.T) {
		c := newConsumer("q", logger.Nop())
		ack := &fakeAck{}
		c.handleMessage(ctx, amqp.Delivery{Acknowledger: ack, Body: []byte("{")})
		assert.Equal(t, 1, ack.rejected)
	})

	t.Run("unknown type is acked", func(t *testing.T) {
		c := newConsumer("q", logger.Nop())
		ack := &fakeAck{}
		c.handleMessage(ctx, delivery(t, ack, "prescription.cancelled", nil))
		assert.Equal(t, 1, ack.acked)
	})

	t.Run("failure republishes with bumped retry count", func(t *testing.T) {
		c := newConsumer("q", logger.Nop())
		c.RegisterHandler(EventFulfillmentRequested, func(context.Context, *Event) error {
			return errors.New("database unavailable")
		})
		var republished []amqp.Publishing
		c.republish = func(_ context.Context, msg amqp.Publishing) error {
			republished = append(republished, msg)
			return nil
		}

		ack := &fakeAck{}
		c.handleMessage(ctx, delivery(t, ack, EventFulfillmentRequested, amqp.Table{HeaderRetryCount: int32(1)}))

		require.Len(t, republished, 1)
		assert.Equal(t, int32(2), republished[0].Headers[HeaderRetryCount])
		assert.Equal(t, 1, ack.acked)
	})

	t.Run("failed republish requeues", func(t *testing.T) {
		c := newConsumer("q", logger.Nop())
		c.RegisterHandler(EventFulfillmentRequested, func(context.Context, *Event) error {
			return errors.New("boom")
		})
		c.republish = func(context.Context, amqp.Publishing) error { return errors.New("channel closed") }

		ack := &fakeAck{}
		c.handleMessage(ctx, delivery(t, ack, EventFulfillmentRequested, nil))
		assert.Equal(t, 1, ack.nacked)
		assert.True(t, ack.requeued)
	})

	t.Run("exhausted retries dead-letter", func(t *testing.T) {
		c := newConsumer("q", logger.Nop())
		c.SetMaxRetries(2)
		c.RegisterHandler(EventFulfillmentRequested, func(context.Context, *Event) error {
			return errors.New("boom")
		})
		c.republish = func(context.Context, amqp.Publishing) error {
			t.Fatal("should not republish")
			return nil
		}

		ack := &fakeAck{}
		c.handleMessage(ctx, delivery(t, ack, EventFulfillmentRequested, amqp.Table{HeaderRetryCount: int32(2)}))
		assert.Equal(t, 1, ack.rejected)
	})
}

func TestGetRetryCount(t *testing.T) {
	tests := []struct {
		name    string
		headers amqp.Table
		want    int
	}{
		{"no headers", nil, 0},
		{"retry header int32", amqp.Table{HeaderRetryCount: int32(2)}, 2},
		{"retry header int64", amqp.Table{HeaderRetryCount: int64(4)}, 4},
		{"x-death count", amqp.Table{"x-death": []interface{}{amqp.Table{"count": int64(3)}}}, 3},
		{"unrelated headers", amqp.Table{"foo": "bar"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, getRetryCount(amqp.Delivery{Headers: tt.headers}))
		})
	}
}

func TestNewEvent(t *testing.T) {
	event, err := NewEvent(EventBatchExpiring, "pharmacy-service", "corr-9", BatchExpiringEvent{
		BatchID:       "b1",
		DaysRemaining: 5,
		Status:        "imminent",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, EventBatchExpiring, event.Type)
	assert.Equal(t, "corr-9", event.CorrelationID)

	var payload BatchExpiringEvent
	require.NoError(t, event.UnmarshalData(&payload))
	assert.Equal(t, 5, payload.DaysRemaining)

	other, err := NewEvent(EventBatchExpiring, "pharmacy-service", "", nil)
	require.NoError(t, err)
	assert.NotEqual(t, event.ID, other.ID)
}
