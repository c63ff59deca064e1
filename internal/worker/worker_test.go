package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"rental-service/internal/broker"
	"rental-service/internal/broker/brokertest"
	"rental-service/internal/models"
	"rental-service/internal/realtime"
	"rental-service/internal/redisclient"
	"rental-service/internal/service"
	"rental-service/internal/store/storetest"

	"github.com/alicebob/miniredis/v2"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func message(t *testing.T, event interface{}) kafka.Message {
	raw, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Key: []byte("k"), Value: raw}
}

func TestNotificationWorkerDeliversToRecipients(t *testing.T) {
	hub := realtime.NewHub(4)
	w := NewNotificationWorker(nil, hub)
	ctx := context.Background()

	owner := hub.Subscribe("owner-1")
	defer owner.Close()
	renter := hub.Subscribe("renter-1")
	defer renter.Close()
	bystander := hub.Subscribe("someone-else")
	defer bystander.Close()

	event := &models.BookingEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeBookingConfirmed, "owner-1", "renter-1"),
		BookingID: "b-1",
		Status:    models.BookingStatusConfirmed,
	}
	require.NoError(t, w.eventHandler.HandleMessage(ctx, message(t, event)))

	for _, sub := range []*realtime.Subscription{owner, renter} {
		select {
		case got := <-sub.Events():
			assert.Equal(t, event.EventID, got.ID)
			assert.Equal(t, models.EventTypeBookingConfirmed, got.Type)
			var decoded models.BookingEvent
			require.NoError(t, json.Unmarshal(got.Data, &decoded))
			assert.Equal(t, "b-1", decoded.BookingID)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}

	select {
	case <-bystander.Events():
		t.Fatal("event delivered to a user it was not addressed to")
	default:
	}

	// Undecodable payloads are skipped
	assert.NoError(t, w.eventHandler.HandleMessage(ctx, kafka.Message{Value: []byte("{")}))
}

func TestEarningsWorkerCreditsOnce(t *testing.T) {
	s := storetest.New(t)
	recorder := &brokertest.Recorder{}
	wallet := service.NewWalletService(s, broker.NewEventPublisher(recorder), 10, 100)
	w := NewEarningsWorker(nil, s, wallet)
	ctx := context.Background()

	owner := storetest.Profile(t, s)
	renter := storetest.Profile(t, s)
	item := storetest.Item(t, s, owner, 400)
	b := storetest.Booking(t, s, item, renter, storetest.Day(1), 5)
	_, err := s.TransitionBooking(ctx, b.ID, []string{models.BookingStatusPending}, models.BookingStatusConfirmed)
	require.NoError(t, err)

	event := &models.BookingEvent{
		BaseEvent:   models.NewBaseEvent(models.EventTypeBookingConfirmed, owner, renter),
		BookingID:   b.ID,
		ItemID:      item.ID,
		OwnerID:     owner,
		RenterID:    renter,
		TotalAmount: b.TotalAmount,
		Status:      models.BookingStatusConfirmed,
	}
	msg := message(t, event)
	require.NoError(t, w.eventHandler.HandleMessage(ctx, msg))
	require.NoError(t, w.eventHandler.HandleMessage(ctx, msg))

	processed, err := s.IsEventProcessed(ctx, event.EventID)
	require.NoError(t, err)
	assert.True(t, processed)

	// A second confirmation event for the same booking is absorbed by the ledger
	again := *event
	again.BaseEvent = models.NewBaseEvent(models.EventTypeBookingConfirmed, owner)
	require.NoError(t, w.eventHandler.HandleMessage(ctx, message(t, &again)))

	balance, err := wallet.GetWallet(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(1800), balance.Balance)
	assert.Equal(t, []string{models.EventTypeWalletCredited}, recorder.Types())

	// Other event types are ignored
	other := &models.BookingEvent{BaseEvent: models.NewBaseEvent(models.EventTypeBookingCreated, owner), BookingID: b.ID}
	assert.NoError(t, w.eventHandler.HandleMessage(ctx, message(t, other)))
}

func TestEarningsWorkerRetriesOnError(t *testing.T) {
	s := storetest.New(t)
	wallet := service.NewWalletService(s, broker.NewEventPublisher(&brokertest.Recorder{}), 10, 100)
	w := NewEarningsWorker(nil, s, wallet)
	ctx := context.Background()

	event := &models.BookingEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeBookingConfirmed),
		BookingID: "00000000-0000-0000-0000-000000000000",
	}
	err := w.HandleBookingConfirmed(ctx, event)
	assert.ErrorIs(t, err, models.ErrNotFound)

	processed, err := s.IsEventProcessed(ctx, event.EventID)
	require.NoError(t, err)
	assert.False(t, processed, "failed events are not marked processed")
}

func TestMaintenanceLoopRunOnce(t *testing.T) {
	s := storetest.New(t)
	mr := miniredis.RunT(t)
	rc, err := redisclient.NewClient(mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })
	publisher := broker.NewEventPublisher(&brokertest.Recorder{})
	plans := service.NewPlans(500, 1200)

	bookings := service.NewBookingService(s, rc, publisher, time.Hour)
	payments := service.NewPaymentService(s, rc, publisher, service.Providers{}, plans, service.PaymentTimeouts{Mpesa: 30 * time.Minute, Pesapal: 2 * time.Hour})
	subs := service.NewSubscriptionService(s, plans)
	wallet := service.NewWalletService(s, publisher, 10, 100)
	loop := NewMaintenanceLoop(payments, bookings, subs, wallet, time.Minute)
	ctx := context.Background()

	owner := storetest.Profile(t, s)
	renter := storetest.Profile(t, s)
	item := storetest.Item(t, s, owner, 400)
	b := storetest.Booking(t, s, item, renter, storetest.Day(1), 2)
	txn := &models.Transaction{
		ID:                "7d0e3f38-8f51-4f57-9c2a-6a4b7a8e0c01",
		UserID:            renter,
		BookingID:         &b.ID,
		Provider:          models.ProviderMpesa,
		Amount:            b.TotalAmount,
		Currency:          models.DefaultCurrency,
		Status:            models.TransactionStatusPending,
		TrackingID:        "ws_CO_maint",
		MerchantReference: "c7a1f1d2-3b8e-4f0e-8a55-0d2b9a0f6e21",
	}
	require.NoError(t, s.CreateTransaction(ctx, txn))

	loop.RunOnce(ctx, time.Now())
	got, err := s.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusPending, got.Status)

	loop.RunOnce(ctx, time.Now().Add(2*time.Hour))
	got, err = s.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, got.Status)
	gotTxn, err := s.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusFailed, gotTxn.Status)

	// A confirmation whose event never credited the owner
	paid := storetest.Booking(t, s, item, renter, storetest.Day(6), 1)
	ok, err := s.TransitionBooking(ctx, paid.ID, []string{models.BookingStatusPending}, models.BookingStatusConfirmed)
	require.NoError(t, err)
	require.True(t, ok)

	loop.RunOnce(ctx, time.Now())
	w, err := s.GetOrCreateWallet(ctx, owner)
	require.NoError(t, err)
	assert.Zero(t, w.Balance, "left to the earnings worker for one interval")

	loop.RunOnce(ctx, time.Now().Add(2*time.Minute))
	w, err = s.GetOrCreateWallet(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(360), w.Balance)
}

func TestMaintenanceLoopStopsOnCancel(t *testing.T) {
	loop := NewMaintenanceLoop(nil, nil, nil, nil, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, loop.Start(ctx), context.Canceled)
}
