package store

import (
	"context"
	"errors"
	"time"

	"rental-service/internal/models"
)

const subscriptionColumns = "id, user_id, plan, amount, status, starts_at, expires_at, created_at, updated_at"

// CreateSubscription inserts a subscription
func (s *Store) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	ts := now()
	sub.CreatedAt, sub.UpdatedAt = ts, ts
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO subscriptions (id, user_id, plan, amount, status, starts_at, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		sub.ID, sub.UserID, sub.Plan, sub.Amount, sub.Status, sub.StartsAt, sub.ExpiresAt, sub.CreatedAt, sub.UpdatedAt)
	return err
}

// GetSubscription retrieves a subscription by ID
func (s *Store) GetSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.GetContext(ctx, &sub, s.db.Rebind("SELECT "+subscriptionColumns+" FROM subscriptions WHERE id = ?"), id)
	if err != nil {
		return nil, notFound(err, "subscription", id)
	}
	return &sub, nil
}

// ListSubscriptionsByUser returns a user's subscriptions, newest first
func (s *Store) ListSubscriptionsByUser(ctx context.Context, userID string) ([]models.Subscription, error) {
	subs := []models.Subscription{}
	err := s.db.SelectContext(ctx, &subs, s.db.Rebind(
		"SELECT "+subscriptionColumns+" FROM subscriptions WHERE user_id = ? ORDER BY created_at DESC"), userID)
	return subs, err
}

// GetActiveSubscription returns the user's active subscription with the
// latest expiry, or nil if there is none at the given time.
func (s *Store) GetActiveSubscription(ctx context.Context, userID string, at time.Time) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.GetContext(ctx, &sub, s.db.Rebind(`
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE user_id = ? AND status = ? AND expires_at > ?
		ORDER BY expires_at DESC LIMIT 1`),
		userID, models.SubscriptionStatusActive, at.UTC())
	if errors.Is(err, errNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// ExpireSubscriptions marks active subscriptions past their expiry as expired
func (s *Store) ExpireSubscriptions(ctx context.Context, at time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE subscriptions SET status = ?, updated_at = ?
		WHERE status = ? AND expires_at <= ?`),
		models.SubscriptionStatusExpired, now(), models.SubscriptionStatusActive, at.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
