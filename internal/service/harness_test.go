package service

import (
	"context"
	"testing"
	"time"

	"rental-service/internal/broker"
	"rental-service/internal/broker/brokertest"
	"rental-service/internal/models"
	"rental-service/internal/redisclient"
	"rental-service/internal/store"
	"rental-service/internal/store/storetest"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type harness struct {
	store     *store.Store
	redis     *redisclient.Client
	mr        *miniredis.Miniredis
	events    *brokertest.Recorder
	publisher *broker.EventPublisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	mr := miniredis.RunT(t)
	rc, err := redisclient.NewClient(mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })

	events := &brokertest.Recorder{}
	return &harness{
		store:     storetest.New(t),
		redis:     rc,
		mr:        mr,
		events:    events,
		publisher: broker.NewEventPublisher(events),
	}
}

// activeSubscription gives the user a paid plan valid for another week
func (h *harness) activeSubscription(t *testing.T, userID string) *models.Subscription {
	t.Helper()
	from := time.Now().UTC().Add(-time.Hour)
	until := from.Add(7 * 24 * time.Hour)
	sub := &models.Subscription{
		ID:        uuid.New().String(),
		UserID:    userID,
		Plan:      PlanBasic,
		Amount:    500,
		Status:    models.SubscriptionStatusActive,
		StartsAt:  &from,
		ExpiresAt: &until,
	}
	require.NoError(t, h.store.CreateSubscription(context.Background(), sub))
	return sub
}

// recipientsOf returns the recipients of the first recorded event of the given type
func (h *harness) recipientsOf(eventType string) []string {
	for _, p := range h.events.Events() {
		if e, ok := p.Event.(interface{ Type() string }); ok && e.Type() == eventType {
			switch ev := p.Event.(type) {
			case *models.BookingEvent:
				return ev.Recipients
			case *models.PaymentEvent:
				return ev.Recipients
			case *models.SubscriptionEvent:
				return ev.Recipients
			case *models.WalletEvent:
				return ev.Recipients
			case *models.MessageEvent:
				return ev.Recipients
			}
		}
	}
	return nil
}
