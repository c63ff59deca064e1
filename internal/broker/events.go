package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"rental-service/internal/models"
	"rental-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventProducer writes a keyed event to the event stream
type EventProducer interface {
	PublishEvent(ctx context.Context, key string, event interface{}) error
}

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer EventProducer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer EventProducer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishBookingEvent publishes a booking status event
func (ep *EventPublisher) PublishBookingEvent(ctx context.Context, event *models.BookingEvent) error {
	return ep.producer.PublishEvent(ctx, "booking-"+event.BookingID, event)
}

// PublishPaymentEvent publishes a payment status event
func (ep *EventPublisher) PublishPaymentEvent(ctx context.Context, event *models.PaymentEvent) error {
	return ep.producer.PublishEvent(ctx, "transaction-"+event.TransactionID, event)
}

// PublishSubscriptionEvent publishes a subscription activation event
func (ep *EventPublisher) PublishSubscriptionEvent(ctx context.Context, event *models.SubscriptionEvent) error {
	return ep.producer.PublishEvent(ctx, "subscription-"+event.SubscriptionID, event)
}

// PublishWalletEvent publishes a wallet or withdrawal event
func (ep *EventPublisher) PublishWalletEvent(ctx context.Context, event *models.WalletEvent) error {
	return ep.producer.PublishEvent(ctx, "wallet-"+event.UserID, event)
}

// PublishMessageEvent publishes a new message event
func (ep *EventPublisher) PublishMessageEvent(ctx context.Context, event *models.MessageEvent) error {
	return ep.producer.PublishEvent(ctx, "message-"+event.Message.RecipientID, event)
}

// EventHandler routes incoming events by type
type EventHandler struct {
	onBookingConfirmed func(context.Context, *models.BookingEvent) error
	onAny              func(context.Context, models.BaseEvent, []byte) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnBookingConfirmed registers a handler for booking.confirmed events
func (eh *EventHandler) OnBookingConfirmed(handler func(context.Context, *models.BookingEvent) error) {
	eh.onBookingConfirmed = handler
}

// OnAny registers a handler that receives every event with its raw payload
func (eh *EventHandler) OnAny(handler func(context.Context, models.BaseEvent, []byte) error) {
	eh.onAny = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		// Poison messages are logged and skipped so the partition keeps moving
		util.GetLogger().Warn("Dropping undecodable event", zap.ByteString("key", msg.Key), zap.Error(err))
		return nil
	}

	util.GetLogger().Debug("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	if eh.onAny != nil {
		if err := eh.onAny(ctx, baseEvent, msg.Value); err != nil {
			return err
		}
	}

	switch baseEvent.EventType {
	case models.EventTypeBookingConfirmed:
		if eh.onBookingConfirmed != nil {
			var event models.BookingEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal booking event: %w", err)
			}
			return eh.onBookingConfirmed(ctx, &event)
		}
	}

	return nil
}
