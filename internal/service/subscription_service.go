package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"rental-service/internal/models"
	"rental-service/internal/store"
	"rental-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Plan names
const (
	PlanBasic   = "basic"
	PlanPremium = "premium"
)

// NewPlans builds the plan catalog from configured prices
func NewPlans(basicPrice, premiumPrice int64) map[string]models.Plan {
	return map[string]models.Plan{
		PlanBasic:   {Name: PlanBasic, Amount: basicPrice, Days: 30, Duration: 30 * 24 * time.Hour},
		PlanPremium: {Name: PlanPremium, Amount: premiumPrice, Days: 90, Duration: 90 * 24 * time.Hour},
	}
}

// SubscriptionService manages paid plans
type SubscriptionService struct {
	store  *store.Store
	plans  map[string]models.Plan
	logger *zap.Logger
}

// NewSubscriptionService creates a new subscription service
func NewSubscriptionService(store *store.Store, plans map[string]models.Plan) *SubscriptionService {
	return &SubscriptionService{
		store:  store,
		plans:  plans,
		logger: util.GetLogger(),
	}
}

// CreateSubscriptionRequest selects a plan
type CreateSubscriptionRequest struct {
	Plan string `json:"plan" binding:"required,oneof=basic premium"`
}

// Plans lists the catalog ordered by price
func (s *SubscriptionService) Plans() []models.Plan {
	list := make([]models.Plan, 0, len(s.plans))
	for _, p := range s.plans {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Amount < list[j].Amount })
	return list
}

// CreateSubscription records a pending subscription awaiting payment
func (s *SubscriptionService) CreateSubscription(ctx context.Context, userID, plan string) (*models.Subscription, error) {
	ctx, span := util.StartSpan(ctx, "SubscriptionService.CreateSubscription", "user_id", userID, "plan", plan)
	defer span.End()

	p, ok := s.plans[plan]
	if !ok {
		return nil, fmt.Errorf("unknown plan %q: %w", plan, models.ErrInvalidInput)
	}

	sub := &models.Subscription{
		ID:     uuid.New().String(),
		UserID: userID,
		Plan:   p.Name,
		Amount: p.Amount,
		Status: models.SubscriptionStatusPending,
	}
	if err := s.store.CreateSubscription(ctx, sub); err != nil {
		return nil, util.RecordError(span, fmt.Errorf("failed to create subscription: %w", err))
	}

	s.logger.Info("Subscription created", zap.String("subscription_id", sub.ID), zap.String("plan", plan))
	return sub, nil
}

// GetActiveSubscription returns the caller's active subscription or nil
func (s *SubscriptionService) GetActiveSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	return s.store.GetActiveSubscription(ctx, userID, time.Now())
}

// ListSubscriptions returns the caller's subscriptions
func (s *SubscriptionService) ListSubscriptions(ctx context.Context, userID string) ([]models.Subscription, error) {
	return s.store.ListSubscriptionsByUser(ctx, userID)
}

// ExpireSubscriptions marks active subscriptions past their expiry as expired
func (s *SubscriptionService) ExpireSubscriptions(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.store.ExpireSubscriptions(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire subscriptions: %w", err)
	}
	if n > 0 {
		util.MaintenanceExpiredTotal.WithLabelValues("subscription").Add(float64(n))
		s.logger.Info("Subscriptions expired", zap.Int64("count", n))
	}
	return n, nil
}
