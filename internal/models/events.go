package models

import (
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	EventTypeBookingCreated     = "booking.created"
	EventTypeBookingConfirmed   = "booking.confirmed"
	EventTypeBookingCancelled   = "booking.cancelled"
	EventTypeBookingCompleted   = "booking.completed"
	EventTypePaymentInitiated   = "payment.initiated"
	EventTypePaymentCompleted   = "payment.completed"
	EventTypePaymentFailed      = "payment.failed"
	EventTypePaymentCancelled   = "payment.cancelled"
	EventTypeSubscriptionActive = "subscription.active"
	EventTypeWalletCredited     = "wallet.credited"
	EventTypeWithdrawalCreated  = "withdrawal.created"
	EventTypeWithdrawalApproved = "withdrawal.approved"
	EventTypeWithdrawalRejected = "withdrawal.rejected"
	EventTypeMessageCreated     = "message.created"
)

// PaymentEventType returns the event type announcing a transaction status
func PaymentEventType(status string) string {
	switch status {
	case TransactionStatusCompleted:
		return EventTypePaymentCompleted
	case TransactionStatusCancelled:
		return EventTypePaymentCancelled
	case TransactionStatusFailed:
		return EventTypePaymentFailed
	default:
		return EventTypePaymentInitiated
	}
}

// BaseEvent contains common fields for all events. Recipients lists the users
// whose realtime feed should receive the event.
type BaseEvent struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	Timestamp  time.Time `json:"timestamp"`
	Recipients []string  `json:"recipients,omitempty"`
}

// NewBaseEvent stamps a fresh event id and time
func NewBaseEvent(eventType string, recipients ...string) BaseEvent {
	return BaseEvent{
		EventID:    uuid.New().String(),
		EventType:  eventType,
		Timestamp:  time.Now().UTC(),
		Recipients: recipients,
	}
}

// BookingEvent is published on every booking status change
type BookingEvent struct {
	BaseEvent
	BookingID   string `json:"booking_id"`
	ItemID      string `json:"item_id"`
	OwnerID     string `json:"owner_id"`
	RenterID    string `json:"renter_id"`
	TotalAmount int64  `json:"total_amount"`
	Status      string `json:"status"`
}

// PaymentEvent is published when a transaction is created or settled
type PaymentEvent struct {
	BaseEvent
	TransactionID  string  `json:"transaction_id"`
	UserID         string  `json:"user_id"`
	Provider       string  `json:"provider"`
	Amount         int64   `json:"amount"`
	Status         string  `json:"status"`
	BookingID      *string `json:"booking_id,omitempty"`
	SubscriptionID *string `json:"subscription_id,omitempty"`
}

// SubscriptionEvent is published when a subscription becomes active
type SubscriptionEvent struct {
	BaseEvent
	SubscriptionID string     `json:"subscription_id"`
	UserID         string     `json:"user_id"`
	Plan           string     `json:"plan"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
}

// WalletEvent is published for wallet credits and withdrawal lifecycle changes
type WalletEvent struct {
	BaseEvent
	UserID       string `json:"user_id"`
	Amount       int64  `json:"amount"`
	Balance      int64  `json:"balance"`
	WithdrawalID string `json:"withdrawal_id,omitempty"`
	Status       string `json:"status,omitempty"`
}

// MessageEvent carries a new message to its recipient
type MessageEvent struct {
	BaseEvent
	Message Message `json:"message"`
}

// Type returns the event type
func (e BaseEvent) Type() string {
	return e.EventType
}
