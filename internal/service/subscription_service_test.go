package service

import (
	"context"
	"testing"
	"time"

	"rental-service/internal/models"
	"rental-service/internal/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlans(t *testing.T) {
	ss := NewSubscriptionService(nil, NewPlans(500, 1200))
	plans := ss.Plans()
	require.Len(t, plans, 2)
	assert.Equal(t, PlanBasic, plans[0].Name)
	assert.Equal(t, 30, plans[0].Days)
	assert.Equal(t, PlanPremium, plans[1].Name)
	assert.Equal(t, 90*24*time.Hour, plans[1].Duration)
}

func TestSubscriptionLifecycle(t *testing.T) {
	h := newHarness(t)
	ss := NewSubscriptionService(h.store, NewPlans(500, 1200))
	ctx := context.Background()
	user := storetest.Profile(t, h.store)

	_, err := ss.CreateSubscription(ctx, user, "gold")
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	sub, err := ss.CreateSubscription(ctx, user, PlanBasic)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusPending, sub.Status)
	assert.Equal(t, int64(500), sub.Amount)

	active, err := ss.GetActiveSubscription(ctx, user)
	require.NoError(t, err)
	assert.Nil(t, active, "pending subscriptions are not active")

	paid := h.activeSubscription(t, user)
	active, err = ss.GetActiveSubscription(ctx, user)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, paid.ID, active.ID)

	n, err := ss.ExpireSubscriptions(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = ss.ExpireSubscriptions(ctx, time.Now().Add(8*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	list, err := ss.ListSubscriptions(ctx, user)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
