package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"rental-service/internal/broker/brokertest"
	"rental-service/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventPublisherKeys(t *testing.T) {
	rec := &brokertest.Recorder{}
	pub := NewEventPublisher(rec)
	ctx := context.Background()

	require.NoError(t, pub.PublishBookingEvent(ctx, &models.BookingEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeBookingCreated, "owner-1"),
		BookingID: "b1",
	}))
	require.NoError(t, pub.PublishPaymentEvent(ctx, &models.PaymentEvent{
		BaseEvent:     models.NewBaseEvent(models.EventTypePaymentCompleted, "user-1"),
		TransactionID: "t1",
	}))
	require.NoError(t, pub.PublishMessageEvent(ctx, &models.MessageEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeMessageCreated, "user-2"),
		Message:   models.Message{RecipientID: "user-2"},
	}))

	events := rec.Events()
	require.Len(t, events, 3)
	assert.Equal(t, "booking-b1", events[0].Key)
	assert.Equal(t, "transaction-t1", events[1].Key)
	assert.Equal(t, "message-user-2", events[2].Key)
	assert.Equal(t, []string{models.EventTypeBookingCreated, models.EventTypePaymentCompleted, models.EventTypeMessageCreated}, rec.Types())
}

func encode(t *testing.T, v interface{}) kafka.Message {
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return kafka.Message{Value: b}
}

func TestEventHandlerRoutesBookingConfirmed(t *testing.T) {
	h := NewEventHandler()

	var (
		confirmed []string
		seen      []string
	)
	h.OnBookingConfirmed(func(_ context.Context, e *models.BookingEvent) error {
		confirmed = append(confirmed, e.BookingID)
		return nil
	})
	h.OnAny(func(_ context.Context, base models.BaseEvent, _ []byte) error {
		seen = append(seen, base.EventType)
		return nil
	})

	ctx := context.Background()
	require.NoError(t, h.HandleMessage(ctx, encode(t, &models.BookingEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeBookingConfirmed), BookingID: "b1",
	})))
	require.NoError(t, h.HandleMessage(ctx, encode(t, &models.BookingEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeBookingCreated), BookingID: "b2",
	})))

	assert.Equal(t, []string{"b1"}, confirmed)
	assert.Equal(t, []string{models.EventTypeBookingConfirmed, models.EventTypeBookingCreated}, seen)
}

func TestEventHandlerSkipsPoisonMessages(t *testing.T) {
	h := NewEventHandler()
	called := false
	h.OnAny(func(context.Context, models.BaseEvent, []byte) error {
		called = true
		return nil
	})

	assert.NoError(t, h.HandleMessage(context.Background(), kafka.Message{Value: []byte("not json")}))
	assert.False(t, called)
}

func TestEventHandlerPropagatesErrors(t *testing.T) {
	h := NewEventHandler()
	h.OnBookingConfirmed(func(context.Context, *models.BookingEvent) error {
		return errors.New("db down")
	})

	err := h.HandleMessage(context.Background(), encode(t, &models.BookingEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeBookingConfirmed),
	}))
	assert.Error(t, err)
}
