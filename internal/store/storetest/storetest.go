// Package storetest opens migrated SQLite stores for tests.
package storetest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"rental-service/internal/models"
	"rental-service/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// New returns a store backed by a fresh SQLite file with all migrations applied
func New(t *testing.T) *store.Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"

	s, err := store.NewStore("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Migrate())
	return s
}

// Profile inserts a profile with a random id and returns the id
func Profile(t *testing.T, s *store.Store) string {
	t.Helper()
	id := uuid.New().String()
	require.NoError(t, s.EnsureProfile(context.Background(), id, id[:8]+"@example.com"))
	return id
}

// Item inserts an available item owned by ownerID
func Item(t *testing.T, s *store.Store, ownerID string, pricePerDay int64) *models.Item {
	t.Helper()
	item := &models.Item{
		ID:          uuid.New().String(),
		OwnerID:     ownerID,
		Title:       "Camping tent",
		Description: "Four person tent",
		PricePerDay: pricePerDay,
		Location:    "Nairobi",
		Status:      models.ItemStatusAvailable,
	}
	require.NoError(t, s.CreateItem(context.Background(), item))
	return item
}

// Booking inserts a booking for the item starting at start for days days
func Booking(t *testing.T, s *store.Store, item *models.Item, renterID string, start time.Time, days int) *models.Booking {
	t.Helper()
	b := &models.Booking{
		ID:          uuid.New().String(),
		ItemID:      item.ID,
		RenterID:    renterID,
		StartDate:   start,
		EndDate:     start.AddDate(0, 0, days),
		TotalAmount: int64(days) * item.PricePerDay,
		Status:      models.BookingStatusPending,
	}
	require.NoError(t, s.CreateBookingIfAvailable(context.Background(), b))
	return b
}

// Day returns midnight UTC offset days from today
func Day(offset int) time.Time {
	y, m, d := time.Now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}
