package worker

import (
	"context"
	"fmt"
	"time"

	"rental-service/internal/broker"
	"rental-service/internal/models"
	"rental-service/internal/realtime"
	"rental-service/internal/service"
	"rental-service/internal/store"
	"rental-service/internal/util"

	"go.uber.org/zap"
)

// NotificationWorker pushes every event addressed to a user into the
// realtime hub of this instance
type NotificationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	hub          *realtime.Hub
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker. The consumer
// should use a group unique to this instance so every instance sees every event.
func NewNotificationWorker(consumer *broker.Consumer, hub *realtime.Hub) *NotificationWorker {
	w := &NotificationWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		hub:          hub,
		logger:       util.GetLogger(),
	}
	w.eventHandler.OnAny(w.Deliver)
	return w
}

// Deliver forwards one event to the streams of its recipients
func (w *NotificationWorker) Deliver(ctx context.Context, event models.BaseEvent, raw []byte) error {
	for _, userID := range event.Recipients {
		n := w.hub.Publish(userID, realtime.Event{ID: event.EventID, Type: event.EventType, Data: raw})
		if n > 0 {
			w.logger.Debug("Event delivered",
				zap.String("event_type", event.EventType),
				zap.String("user_id", userID),
				zap.Int("streams", n))
		}
	}
	return nil
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.consumer.Close()
}

// EarningsWorker credits owners when their bookings are confirmed
type EarningsWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	store        *store.Store
	wallet       *service.WalletService
	logger       *zap.Logger
}

// NewEarningsWorker creates a new earnings worker. All instances share one
// consumer group so each confirmation is handled once.
func NewEarningsWorker(consumer *broker.Consumer, store *store.Store, wallet *service.WalletService) *EarningsWorker {
	w := &EarningsWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		store:        store,
		wallet:       wallet,
		logger:       util.GetLogger(),
	}
	w.eventHandler.OnBookingConfirmed(w.HandleBookingConfirmed)
	return w
}

// HandleBookingConfirmed credits the owner's share of the booking. Redelivered
// events are skipped through processed_events.
func (w *EarningsWorker) HandleBookingConfirmed(ctx context.Context, event *models.BookingEvent) error {
	ctx, span := util.StartSpan(ctx, "EarningsWorker.HandleBookingConfirmed", "booking_id", event.BookingID)
	defer span.End()

	processed, err := w.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return util.RecordError(span, fmt.Errorf("failed to check event: %w", err))
	}
	if processed {
		w.logger.Debug("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	if _, err := w.wallet.CreditBookingEarning(ctx, event.BookingID); err != nil {
		return util.RecordError(span, err)
	}

	if err := w.store.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		return util.RecordError(span, fmt.Errorf("failed to mark event processed: %w", err))
	}
	return nil
}

// Start starts the worker
func (w *EarningsWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting earnings worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *EarningsWorker) Stop() error {
	w.logger.Info("Stopping earnings worker")
	return w.consumer.Close()
}

// MaintenanceLoop periodically expires stale payments, unpaid bookings and
// lapsed subscriptions, and credits earnings the event path missed
type MaintenanceLoop struct {
	payments      *service.PaymentService
	bookings      *service.BookingService
	subscriptions *service.SubscriptionService
	wallet        *service.WalletService
	interval      time.Duration
	logger        *zap.Logger
}

// NewMaintenanceLoop creates a new maintenance loop
func NewMaintenanceLoop(payments *service.PaymentService, bookings *service.BookingService,
	subscriptions *service.SubscriptionService, wallet *service.WalletService, interval time.Duration) *MaintenanceLoop {
	return &MaintenanceLoop{
		payments:      payments,
		bookings:      bookings,
		subscriptions: subscriptions,
		wallet:        wallet,
		interval:      interval,
		logger:        util.GetLogger(),
	}
}

// RunOnce performs one maintenance pass
func (m *MaintenanceLoop) RunOnce(ctx context.Context, now time.Time) {
	if _, err := m.payments.ExpireStalePayments(ctx, now); err != nil {
		m.logger.Error("Payment expiry failed", zap.Error(err))
	}
	if _, err := m.bookings.ExpireUnpaidBookings(ctx, now); err != nil {
		m.logger.Error("Booking expiry failed", zap.Error(err))
	}
	if _, err := m.subscriptions.ExpireSubscriptions(ctx, now); err != nil {
		m.logger.Error("Subscription expiry failed", zap.Error(err))
	}
	// Recent confirmations are left to the earnings worker
	if _, err := m.wallet.CreditMissedEarnings(ctx, now.Add(-m.interval)); err != nil {
		m.logger.Error("Earnings reconciliation failed", zap.Error(err))
	}
}

// Start runs maintenance every interval until ctx is cancelled
func (m *MaintenanceLoop) Start(ctx context.Context) error {
	m.logger.Info("Starting maintenance loop", zap.Duration("interval", m.interval))
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Maintenance loop stopped")
			return ctx.Err()
		case now := <-ticker.C:
			m.RunOnce(ctx, now)
		}
	}
}
