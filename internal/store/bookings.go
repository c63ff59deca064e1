package store

import (
	"context"
	"fmt"
	"time"

	"rental-service/internal/models"

	"github.com/jmoiron/sqlx"
)

const bookingColumns = "id, item_id, renter_id, start_date, end_date, total_amount, status, created_at, updated_at"

// CreateBookingIfAvailable inserts the booking unless a pending or confirmed
// booking of the same item overlaps [StartDate, EndDate).
func (s *Store) CreateBookingIfAvailable(ctx context.Context, b *models.Booking) error {
	return s.WithTx(ctx, func(tx *sqlx.Tx) error {
		// Bookings of one item queue on its row. SQLite already serializes
		// writers on the database lock.
		if s.driver == "postgres" {
			var id string
			if err := tx.GetContext(ctx, &id, tx.Rebind("SELECT id FROM items WHERE id = ? FOR UPDATE"), b.ItemID); err != nil {
				return notFound(err, "item", b.ItemID)
			}
		}

		var overlapping int
		err := tx.GetContext(ctx, &overlapping, tx.Rebind(`
			SELECT COUNT(*) FROM bookings
			WHERE item_id = ? AND status IN (?, ?) AND start_date < ? AND end_date > ?`),
			b.ItemID, models.BookingStatusPending, models.BookingStatusConfirmed, b.EndDate, b.StartDate)
		if err != nil {
			return fmt.Errorf("failed to check overlap: %w", err)
		}
		if overlapping > 0 {
			return fmt.Errorf("item already booked for these dates: %w", models.ErrConflict)
		}

		ts := now()
		b.CreatedAt, b.UpdatedAt = ts, ts
		_, err = tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO bookings (id, item_id, renter_id, start_date, end_date, total_amount, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			b.ID, b.ItemID, b.RenterID, b.StartDate, b.EndDate, b.TotalAmount, b.Status, b.CreatedAt, b.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert booking: %w", err)
		}
		return nil
	})
}

// GetBooking retrieves a booking by ID
func (s *Store) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	var b models.Booking
	err := s.db.GetContext(ctx, &b, s.db.Rebind("SELECT "+bookingColumns+" FROM bookings WHERE id = ?"), id)
	if err != nil {
		return nil, notFound(err, "booking", id)
	}
	return &b, nil
}

// ListBookingsByRenter returns a renter's bookings, newest first
func (s *Store) ListBookingsByRenter(ctx context.Context, renterID string) ([]models.Booking, error) {
	bookings := []models.Booking{}
	err := s.db.SelectContext(ctx, &bookings, s.db.Rebind(
		"SELECT "+bookingColumns+" FROM bookings WHERE renter_id = ? ORDER BY created_at DESC"), renterID)
	return bookings, err
}

// ListBookingsByOwner returns bookings of items owned by ownerID, newest first
func (s *Store) ListBookingsByOwner(ctx context.Context, ownerID string) ([]models.Booking, error) {
	bookings := []models.Booking{}
	err := s.db.SelectContext(ctx, &bookings, s.db.Rebind(`
		SELECT b.id, b.item_id, b.renter_id, b.start_date, b.end_date, b.total_amount, b.status, b.created_at, b.updated_at
		FROM bookings b JOIN items i ON i.id = b.item_id
		WHERE i.owner_id = ?
		ORDER BY b.created_at DESC`), ownerID)
	return bookings, err
}

// TransitionBooking moves a booking to status "to" only if it is currently in
// one of "from". It reports whether the row changed.
func (s *Store) TransitionBooking(ctx context.Context, id string, from []string, to string) (bool, error) {
	query, args, err := sqlx.In("UPDATE bookings SET status = ?, updated_at = ? WHERE id = ? AND status IN (?)",
		to, now(), id, from)
	if err != nil {
		return false, err
	}
	return affected(s.db.ExecContext(ctx, s.db.Rebind(query), args...))
}

// ListPendingBookingsBefore returns pending bookings created before the
// cutoff that have no payment in progress
func (s *Store) ListPendingBookingsBefore(ctx context.Context, before time.Time) ([]models.Booking, error) {
	bookings := []models.Booking{}
	err := s.db.SelectContext(ctx, &bookings, s.db.Rebind(`
		SELECT `+bookingColumns+` FROM bookings b
		WHERE b.status = ? AND b.created_at < ?
			AND NOT EXISTS (SELECT 1 FROM transactions t WHERE t.booking_id = b.id AND t.status = ?)
		ORDER BY b.created_at`),
		models.BookingStatusPending, before.UTC(), models.TransactionStatusPending)
	return bookings, err
}

// ListUncreditedBookings returns confirmed or completed bookings last
// updated before the cutoff whose owner earning is not in the ledger yet
func (s *Store) ListUncreditedBookings(ctx context.Context, before time.Time) ([]models.Booking, error) {
	bookings := []models.Booking{}
	err := s.db.SelectContext(ctx, &bookings, s.db.Rebind(`
		SELECT `+bookingColumns+` FROM bookings b
		WHERE b.status IN (?, ?) AND b.updated_at < ?
			AND NOT EXISTS (SELECT 1 FROM wallet_entries e WHERE e.kind = ? AND e.reference = b.id)
		ORDER BY b.updated_at`),
		models.BookingStatusConfirmed, models.BookingStatusCompleted, before.UTC(), models.EntryKindBookingEarning)
	return bookings, err
}
