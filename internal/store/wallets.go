package store

import (
	"context"
	"fmt"

	"rental-service/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const (
	walletColumns     = "id, user_id, balance, currency, created_at, updated_at"
	entryColumns      = "id, wallet_id, amount, kind, reference, created_at"
	withdrawalColumns = "id, user_id, amount, phone, status, note, created_at, processed_at, processed_by"
)

// GetOrCreateWallet returns the user's wallet, creating an empty one if needed
func (s *Store) GetOrCreateWallet(ctx context.Context, userID string) (*models.Wallet, error) {
	var w *models.Wallet
	err := s.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		w, err = ensureWallet(ctx, tx, userID)
		return err
	})
	return w, err
}

func ensureWallet(ctx context.Context, tx *sqlx.Tx, userID string) (*models.Wallet, error) {
	ts := now()
	_, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO wallets (id, user_id, balance, currency, created_at, updated_at)
		VALUES (?, ?, 0, ?, ?, ?)
		ON CONFLICT (user_id) DO NOTHING`),
		uuid.New().String(), userID, models.DefaultCurrency, ts, ts)
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}

	var w models.Wallet
	if err := tx.GetContext(ctx, &w, tx.Rebind("SELECT "+walletColumns+" FROM wallets WHERE user_id = ?"), userID); err != nil {
		return nil, notFound(err, "wallet", userID)
	}
	return &w, nil
}

func insertEntry(ctx context.Context, tx *sqlx.Tx, walletID string, amount int64, kind, reference string) (bool, error) {
	return affected(tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO wallet_entries (id, wallet_id, amount, kind, reference, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (kind, reference) DO NOTHING`),
		uuid.New().String(), walletID, amount, kind, reference, now()))
}

// CreditWallet adds amount to the user's wallet once per (kind, reference).
// It returns the wallet after the call and whether the credit was applied.
func (s *Store) CreditWallet(ctx context.Context, userID string, amount int64, kind, reference string) (*models.Wallet, bool, error) {
	var (
		w       *models.Wallet
		applied bool
	)
	err := s.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		w, err = ensureWallet(ctx, tx, userID)
		if err != nil {
			return err
		}

		applied, err = insertEntry(ctx, tx, w.ID, amount, kind, reference)
		if err != nil {
			return fmt.Errorf("failed to insert wallet entry: %w", err)
		}
		if !applied {
			return nil
		}

		w.UpdatedAt = now()
		if _, err := tx.ExecContext(ctx, tx.Rebind("UPDATE wallets SET balance = balance + ?, updated_at = ? WHERE id = ?"),
			amount, w.UpdatedAt, w.ID); err != nil {
			return fmt.Errorf("failed to credit wallet: %w", err)
		}
		w.Balance += amount
		return nil
	})
	return w, applied, err
}

// ListWalletEntries returns the ledger of a user's wallet, newest first
func (s *Store) ListWalletEntries(ctx context.Context, userID string) ([]models.WalletEntry, error) {
	entries := []models.WalletEntry{}
	err := s.db.SelectContext(ctx, &entries, s.db.Rebind(`
		SELECT e.id, e.wallet_id, e.amount, e.kind, e.reference, e.created_at
		FROM wallet_entries e JOIN wallets w ON w.id = e.wallet_id
		WHERE w.user_id = ?
		ORDER BY e.created_at DESC`), userID)
	return entries, err
}

// CreateWithdrawal holds the amount from the user's balance and records a
// pending withdrawal request. The balance is debited with a conditional
// update, so concurrent requests cannot overdraw the wallet.
func (s *Store) CreateWithdrawal(ctx context.Context, w *models.WithdrawalRequest) (*models.Wallet, error) {
	var wallet *models.Wallet
	err := s.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		wallet, err = ensureWallet(ctx, tx, w.UserID)
		if err != nil {
			return err
		}

		ts := now()
		ok, err := affected(tx.ExecContext(ctx, tx.Rebind(`
			UPDATE wallets SET balance = balance - ?, updated_at = ?
			WHERE id = ? AND balance >= ?`),
			w.Amount, ts, wallet.ID, w.Amount))
		if err != nil {
			return fmt.Errorf("failed to debit wallet: %w", err)
		}
		if !ok {
			return fmt.Errorf("balance %d below %d: %w", wallet.Balance, w.Amount, models.ErrInsufficientFunds)
		}

		w.CreatedAt = ts
		_, err = tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO withdrawal_requests (id, user_id, amount, phone, status, note, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`),
			w.ID, w.UserID, w.Amount, w.Phone, w.Status, w.Note, w.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert withdrawal: %w", err)
		}

		if _, err := insertEntry(ctx, tx, wallet.ID, -w.Amount, models.EntryKindWithdrawalHold, w.ID); err != nil {
			return fmt.Errorf("failed to insert hold entry: %w", err)
		}
		wallet.Balance -= w.Amount
		wallet.UpdatedAt = ts
		return nil
	})
	return wallet, err
}

// GetWithdrawal retrieves a withdrawal request by ID
func (s *Store) GetWithdrawal(ctx context.Context, id string) (*models.WithdrawalRequest, error) {
	var w models.WithdrawalRequest
	err := s.db.GetContext(ctx, &w, s.db.Rebind("SELECT "+withdrawalColumns+" FROM withdrawal_requests WHERE id = ?"), id)
	if err != nil {
		return nil, notFound(err, "withdrawal", id)
	}
	return &w, nil
}

// ListWithdrawalsByUser returns a user's withdrawal requests, newest first
func (s *Store) ListWithdrawalsByUser(ctx context.Context, userID string) ([]models.WithdrawalRequest, error) {
	list := []models.WithdrawalRequest{}
	err := s.db.SelectContext(ctx, &list, s.db.Rebind(
		"SELECT "+withdrawalColumns+" FROM withdrawal_requests WHERE user_id = ? ORDER BY created_at DESC"), userID)
	return list, err
}

// ListWithdrawalsByStatus returns requests in the given status, oldest first
func (s *Store) ListWithdrawalsByStatus(ctx context.Context, status string) ([]models.WithdrawalRequest, error) {
	list := []models.WithdrawalRequest{}
	err := s.db.SelectContext(ctx, &list, s.db.Rebind(
		"SELECT "+withdrawalColumns+" FROM withdrawal_requests WHERE status = ? ORDER BY created_at"), status)
	return list, err
}

// ProcessWithdrawal moves a pending request to approved or rejected. A
// rejection releases the held amount back to the wallet.
func (s *Store) ProcessWithdrawal(ctx context.Context, id, status, adminID, note string) (*models.WithdrawalRequest, error) {
	var w models.WithdrawalRequest
	err := s.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &w, tx.Rebind("SELECT "+withdrawalColumns+" FROM withdrawal_requests WHERE id = ?"), id); err != nil {
			return notFound(err, "withdrawal", id)
		}

		ts := now()
		ok, err := affected(tx.ExecContext(ctx, tx.Rebind(`
			UPDATE withdrawal_requests SET status = ?, note = ?, processed_at = ?, processed_by = ?
			WHERE id = ? AND status = ?`),
			status, note, ts, adminID, id, models.WithdrawalStatusPending))
		if err != nil {
			return fmt.Errorf("failed to update withdrawal: %w", err)
		}
		if !ok {
			return fmt.Errorf("withdrawal %s is %s: %w", id, w.Status, models.ErrConflict)
		}
		w.Status, w.Note, w.ProcessedAt, w.ProcessedBy = status, note, &ts, &adminID

		if status != models.WithdrawalStatusRejected {
			return nil
		}

		wallet, err := ensureWallet(ctx, tx, w.UserID)
		if err != nil {
			return err
		}
		applied, err := insertEntry(ctx, tx, wallet.ID, w.Amount, models.EntryKindWithdrawalRelease, w.ID)
		if err != nil {
			return fmt.Errorf("failed to insert release entry: %w", err)
		}
		if !applied {
			return nil
		}
		_, err = tx.ExecContext(ctx, tx.Rebind("UPDATE wallets SET balance = balance + ?, updated_at = ? WHERE id = ?"),
			w.Amount, ts, wallet.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &w, nil
}
