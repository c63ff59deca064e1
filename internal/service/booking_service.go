package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rental-service/internal/broker"
	"rental-service/internal/models"
	"rental-service/internal/redisclient"
	"rental-service/internal/store"
	"rental-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DateLayout is the wire format of booking dates
const DateLayout = "2006-01-02"

const itemLockTTL = 10 * time.Second

// BookingService manages item reservations
type BookingService struct {
	store          *store.Store
	redis          *redisclient.Client
	publisher      *broker.EventPublisher
	bookingTimeout time.Duration
	logger         *zap.Logger
}

// NewBookingService creates a new booking service
func NewBookingService(store *store.Store, redis *redisclient.Client, publisher *broker.EventPublisher, bookingTimeout time.Duration) *BookingService {
	return &BookingService{
		store:          store,
		redis:          redis,
		publisher:      publisher,
		bookingTimeout: bookingTimeout,
		logger:         util.GetLogger(),
	}
}

// CreateBookingRequest represents a request to book an item
type CreateBookingRequest struct {
	ItemID    string `json:"item_id" binding:"required,uuid"`
	StartDate string `json:"start_date" binding:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" binding:"required,datetime=2006-01-02"`
}

// ParseDateRange parses a [start, end) date range and validates its order
func ParseDateRange(start, end string) (time.Time, time.Time, error) {
	s, err := time.ParseInLocation(DateLayout, start, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("start_date %q: %w", start, models.ErrInvalidInput)
	}
	e, err := time.ParseInLocation(DateLayout, end, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("end_date %q: %w", end, models.ErrInvalidInput)
	}
	if !e.After(s) {
		return time.Time{}, time.Time{}, fmt.Errorf("end_date must be after start_date: %w", models.ErrInvalidInput)
	}
	return s, e, nil
}

func today() time.Time {
	return time.Now().UTC().Truncate(24 * time.Hour)
}

// CreateBooking reserves an item for the renter. The booking stays pending
// until its payment completes.
func (s *BookingService) CreateBooking(ctx context.Context, renterID string, req *CreateBookingRequest) (*models.Booking, error) {
	ctx, span := util.StartSpan(ctx, "BookingService.CreateBooking", "renter_id", renterID, "item_id", req.ItemID)
	defer span.End()

	start, end, err := ParseDateRange(req.StartDate, req.EndDate)
	if err != nil {
		util.BookingsRejectedTotal.WithLabelValues("invalid_dates").Inc()
		return nil, err
	}
	if start.Before(today()) {
		util.BookingsRejectedTotal.WithLabelValues("invalid_dates").Inc()
		return nil, fmt.Errorf("start_date is in the past: %w", models.ErrInvalidInput)
	}

	item, err := s.store.GetItem(ctx, req.ItemID)
	if err != nil {
		return nil, util.RecordError(span, err)
	}
	if item.OwnerID == renterID {
		util.BookingsRejectedTotal.WithLabelValues("own_item").Inc()
		return nil, fmt.Errorf("cannot book your own item: %w", models.ErrInvalidInput)
	}
	if item.Status != models.ItemStatusAvailable {
		util.BookingsRejectedTotal.WithLabelValues("unavailable").Inc()
		return nil, fmt.Errorf("item %s is %s: %w", item.ID, item.Status, models.ErrConflict)
	}

	// Serialize bookings of one item across instances
	token, err := s.redis.AcquireLock(ctx, "item:"+item.ID, itemLockTTL)
	if errors.Is(err, redisclient.ErrLockHeld) {
		util.BookingsRejectedTotal.WithLabelValues("busy").Inc()
		return nil, fmt.Errorf("item %s is being booked, retry: %w", item.ID, models.ErrConflict)
	}
	if err != nil {
		return nil, util.RecordError(span, fmt.Errorf("failed to lock item: %w", err))
	}
	defer func() {
		if err := s.redis.ReleaseLock(context.Background(), "item:"+item.ID, token); err != nil {
			s.logger.Warn("Failed to release item lock", zap.String("item_id", item.ID), zap.Error(err))
		}
	}()

	booking := &models.Booking{
		ID:        uuid.New().String(),
		ItemID:    item.ID,
		RenterID:  renterID,
		StartDate: start,
		EndDate:   end,
		Status:    models.BookingStatusPending,
	}
	booking.TotalAmount = booking.Days() * item.PricePerDay

	if err := s.store.CreateBookingIfAvailable(ctx, booking); err != nil {
		if errors.Is(err, models.ErrConflict) {
			util.BookingsRejectedTotal.WithLabelValues("overlap").Inc()
		}
		return nil, util.RecordError(span, err)
	}

	util.BookingsCreatedTotal.Inc()
	s.logger.Info("Booking created",
		zap.String("booking_id", booking.ID),
		zap.String("item_id", item.ID),
		zap.Int64("total_amount", booking.TotalAmount))

	s.publish(ctx, models.EventTypeBookingCreated, booking, item.OwnerID, item.OwnerID)
	return booking, nil
}

func (s *BookingService) publish(ctx context.Context, eventType string, b *models.Booking, ownerID string, recipients ...string) {
	event := &models.BookingEvent{
		BaseEvent:   models.NewBaseEvent(eventType, recipients...),
		BookingID:   b.ID,
		ItemID:      b.ItemID,
		OwnerID:     ownerID,
		RenterID:    b.RenterID,
		TotalAmount: b.TotalAmount,
		Status:      b.Status,
	}
	if err := s.publisher.PublishBookingEvent(ctx, event); err != nil {
		s.logger.Error("Failed to publish booking event",
			zap.String("event_type", eventType),
			zap.String("booking_id", b.ID),
			zap.Error(err))
	}
}

// bookingWithOwner loads a booking and the owner of its item
func (s *BookingService) bookingWithOwner(ctx context.Context, id string) (*models.Booking, string, error) {
	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, "", err
	}
	item, err := s.store.GetItem(ctx, b.ItemID)
	if err != nil {
		return nil, "", err
	}
	return b, item.OwnerID, nil
}

// GetBooking returns a booking visible to its renter or the item owner
func (s *BookingService) GetBooking(ctx context.Context, userID, id string) (*models.Booking, error) {
	b, ownerID, err := s.bookingWithOwner(ctx, id)
	if err != nil {
		return nil, err
	}
	if userID != b.RenterID && userID != ownerID {
		return nil, fmt.Errorf("booking %s: %w", id, models.ErrForbidden)
	}
	return b, nil
}

// ListRenterBookings returns bookings made by the user
func (s *BookingService) ListRenterBookings(ctx context.Context, userID string) ([]models.Booking, error) {
	return s.store.ListBookingsByRenter(ctx, userID)
}

// ListOwnerBookings returns bookings of the user's items
func (s *BookingService) ListOwnerBookings(ctx context.Context, userID string) ([]models.Booking, error) {
	return s.store.ListBookingsByOwner(ctx, userID)
}

// CancelBooking cancels the renter's pending or confirmed booking before it starts
func (s *BookingService) CancelBooking(ctx context.Context, renterID, id string) (*models.Booking, error) {
	ctx, span := util.StartSpan(ctx, "BookingService.CancelBooking", "booking_id", id)
	defer span.End()

	b, ownerID, err := s.bookingWithOwner(ctx, id)
	if err != nil {
		return nil, util.RecordError(span, err)
	}
	if b.RenterID != renterID {
		return nil, fmt.Errorf("booking %s: %w", id, models.ErrForbidden)
	}
	if !b.StartDate.After(today()) {
		return nil, fmt.Errorf("booking %s has already started: %w", id, models.ErrConflict)
	}

	ok, err := s.store.TransitionBooking(ctx, id,
		[]string{models.BookingStatusPending, models.BookingStatusConfirmed}, models.BookingStatusCancelled)
	if err != nil {
		return nil, util.RecordError(span, fmt.Errorf("failed to cancel booking: %w", err))
	}
	if !ok {
		return nil, fmt.Errorf("booking %s is %s: %w", id, b.Status, models.ErrConflict)
	}

	b.Status = models.BookingStatusCancelled
	util.BookingsStatusTotal.WithLabelValues(b.Status).Inc()
	s.logger.Info("Booking cancelled", zap.String("booking_id", id))
	s.publish(ctx, models.EventTypeBookingCancelled, b, ownerID, ownerID)
	return b, nil
}

// CompleteBooking marks a confirmed booking completed; owner only
func (s *BookingService) CompleteBooking(ctx context.Context, ownerID, id string) (*models.Booking, error) {
	ctx, span := util.StartSpan(ctx, "BookingService.CompleteBooking", "booking_id", id)
	defer span.End()

	b, itemOwner, err := s.bookingWithOwner(ctx, id)
	if err != nil {
		return nil, util.RecordError(span, err)
	}
	if itemOwner != ownerID {
		return nil, fmt.Errorf("booking %s: %w", id, models.ErrForbidden)
	}

	ok, err := s.store.TransitionBooking(ctx, id, []string{models.BookingStatusConfirmed}, models.BookingStatusCompleted)
	if err != nil {
		return nil, util.RecordError(span, fmt.Errorf("failed to complete booking: %w", err))
	}
	if !ok {
		return nil, fmt.Errorf("booking %s is %s: %w", id, b.Status, models.ErrConflict)
	}

	b.Status = models.BookingStatusCompleted
	util.BookingsStatusTotal.WithLabelValues(b.Status).Inc()
	s.publish(ctx, models.EventTypeBookingCompleted, b, ownerID, b.RenterID)
	return b, nil
}

// ExpireUnpaidBookings cancels pending bookings older than the booking timeout.
// Bookings with a payment still in progress wait for it to settle.
func (s *BookingService) ExpireUnpaidBookings(ctx context.Context, now time.Time) (int, error) {
	stale, err := s.store.ListPendingBookingsBefore(ctx, now.Add(-s.bookingTimeout))
	if err != nil {
		return 0, fmt.Errorf("failed to list pending bookings: %w", err)
	}

	expired := 0
	for i := range stale {
		b := &stale[i]
		ok, err := s.store.TransitionBooking(ctx, b.ID, []string{models.BookingStatusPending}, models.BookingStatusCancelled)
		if err != nil {
			s.logger.Error("Failed to expire booking", zap.String("booking_id", b.ID), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		expired++
		b.Status = models.BookingStatusCancelled

		ownerID := ""
		if item, err := s.store.GetItem(ctx, b.ItemID); err == nil {
			ownerID = item.OwnerID
		}
		s.publish(ctx, models.EventTypeBookingCancelled, b, ownerID, b.RenterID)
	}

	if expired > 0 {
		util.MaintenanceExpiredTotal.WithLabelValues("booking").Add(float64(expired))
		s.logger.Info("Unpaid bookings expired", zap.Int("count", expired))
	}
	return expired, nil
}
