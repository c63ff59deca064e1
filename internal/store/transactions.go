package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rental-service/internal/models"

	"github.com/jmoiron/sqlx"
)

const transactionColumns = "id, user_id, booking_id, subscription_id, provider, amount, currency, status, tracking_id, merchant_reference, phone, provider_reference, result_desc, created_at, updated_at"

// Settlement describes the move of a pending transaction to a final status.
// ActiveFrom/ActiveUntil are used only when a completed payment activates a
// subscription.
type Settlement struct {
	TransactionID     string
	Status            string
	ProviderReference string
	ResultDesc        string
	BookingID         *string
	SubscriptionID    *string
	ActiveFrom        time.Time
	ActiveUntil       time.Time
}

// SettlementResult reports what a settlement changed
type SettlementResult struct {
	Settled  bool
	FollowOn bool
}

// CreateTransaction inserts a payment transaction
func (s *Store) CreateTransaction(ctx context.Context, t *models.Transaction) error {
	ts := now()
	t.CreatedAt, t.UpdatedAt = ts, ts
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO transactions (id, user_id, booking_id, subscription_id, provider, amount, currency, status,
			tracking_id, merchant_reference, phone, provider_reference, result_desc, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		t.ID, t.UserID, t.BookingID, t.SubscriptionID, t.Provider, t.Amount, t.Currency, t.Status,
		t.TrackingID, t.MerchantReference, t.Phone, t.ProviderReference, t.ResultDesc, t.CreatedAt, t.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("transaction %s: %w", t.MerchantReference, models.ErrConflict)
	}
	return err
}

// GetTransaction retrieves a transaction by ID
func (s *Store) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	return s.getTransaction(ctx, "id", id)
}

// GetTransactionByTrackingID retrieves a transaction by the provider's tracking id
func (s *Store) GetTransactionByTrackingID(ctx context.Context, trackingID string) (*models.Transaction, error) {
	return s.getTransaction(ctx, "tracking_id", trackingID)
}

// GetTransactionByMerchantReference retrieves a transaction by the client
// reference. Returns nil, nil if none exists.
func (s *Store) GetTransactionByMerchantReference(ctx context.Context, ref string) (*models.Transaction, error) {
	t, err := s.getTransaction(ctx, "merchant_reference", ref)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	return t, err
}

func (s *Store) getTransaction(ctx context.Context, column, value string) (*models.Transaction, error) {
	var t models.Transaction
	err := s.db.GetContext(ctx, &t, s.db.Rebind("SELECT "+transactionColumns+" FROM transactions WHERE "+column+" = ?"), value)
	if err != nil {
		return nil, notFound(err, "transaction", value)
	}
	return &t, nil
}

// ListTransactionsByUser returns a payer's transactions, newest first
func (s *Store) ListTransactionsByUser(ctx context.Context, userID string) ([]models.Transaction, error) {
	txns := []models.Transaction{}
	err := s.db.SelectContext(ctx, &txns, s.db.Rebind(
		"SELECT "+transactionColumns+" FROM transactions WHERE user_id = ? ORDER BY created_at DESC"), userID)
	return txns, err
}

// ListPendingTransactionsBefore returns pending transactions created before the cutoff
func (s *Store) ListPendingTransactionsBefore(ctx context.Context, before time.Time) ([]models.Transaction, error) {
	txns := []models.Transaction{}
	err := s.db.SelectContext(ctx, &txns, s.db.Rebind(
		"SELECT "+transactionColumns+" FROM transactions WHERE status = ? AND created_at < ? ORDER BY created_at"),
		models.TransactionStatusPending, before.UTC())
	return txns, err
}

// SettleTransaction writes the final status of a pending transaction. The
// write is conditional on the row still being pending, so a replayed callback
// changes nothing. A completed payment confirms its booking or activates its
// subscription in the same database transaction.
func (s *Store) SettleTransaction(ctx context.Context, st Settlement) (SettlementResult, error) {
	var result SettlementResult
	err := s.WithTx(ctx, func(tx *sqlx.Tx) error {
		ts := now()
		ok, err := affected(tx.ExecContext(ctx, tx.Rebind(`
			UPDATE transactions SET status = ?, provider_reference = ?, result_desc = ?, updated_at = ?
			WHERE id = ? AND status = ?`),
			st.Status, st.ProviderReference, st.ResultDesc, ts, st.TransactionID, models.TransactionStatusPending))
		if err != nil {
			return fmt.Errorf("failed to update transaction: %w", err)
		}
		if !ok {
			return nil
		}
		result.Settled = true

		if st.Status != models.TransactionStatusCompleted {
			return nil
		}

		switch {
		case st.BookingID != nil:
			result.FollowOn, err = affected(tx.ExecContext(ctx, tx.Rebind(`
				UPDATE bookings SET status = ?, updated_at = ? WHERE id = ? AND status = ?`),
				models.BookingStatusConfirmed, ts, *st.BookingID, models.BookingStatusPending))
		case st.SubscriptionID != nil:
			from, until := st.ActiveFrom.UTC(), st.ActiveUntil.UTC()
			result.FollowOn, err = affected(tx.ExecContext(ctx, tx.Rebind(`
				UPDATE subscriptions SET status = ?, starts_at = ?, expires_at = ?, updated_at = ?
				WHERE id = ? AND status = ?`),
				models.SubscriptionStatusActive, from, until, ts, *st.SubscriptionID, models.SubscriptionStatusPending))
		}
		if err != nil {
			return fmt.Errorf("failed to apply payment follow-on: %w", err)
		}
		return nil
	})
	return result, err
}
