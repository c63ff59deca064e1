package service

import (
	"context"
	"fmt"
	"time"

	"rental-service/internal/broker"
	"rental-service/internal/models"
	"rental-service/internal/payments"
	"rental-service/internal/store"
	"rental-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WalletService credits owner earnings and handles withdrawal requests
type WalletService struct {
	store             *store.Store
	publisher         *broker.EventPublisher
	commissionPercent int64
	minWithdrawal     int64
	logger            *zap.Logger
}

// NewWalletService creates a new wallet service
func NewWalletService(store *store.Store, publisher *broker.EventPublisher, commissionPercent, minWithdrawal int64) *WalletService {
	return &WalletService{
		store:             store,
		publisher:         publisher,
		commissionPercent: commissionPercent,
		minWithdrawal:     minWithdrawal,
		logger:            util.GetLogger(),
	}
}

// WithdrawalRequest asks for a payout to an M-Pesa number
type WithdrawalRequest struct {
	Amount int64  `json:"amount" binding:"required,gt=0"`
	Phone  string `json:"phone" binding:"required,msisdn"`
}

// RejectWithdrawalRequest carries the reason for a rejection
type RejectWithdrawalRequest struct {
	Note string `json:"note" binding:"max=500"`
}

// OwnerShare is the part of a booking total credited to the item owner
func (s *WalletService) OwnerShare(total int64) int64 {
	return total * (100 - s.commissionPercent) / 100
}

// GetWallet returns the user's wallet, creating an empty one on first access
func (s *WalletService) GetWallet(ctx context.Context, userID string) (*models.Wallet, error) {
	return s.store.GetOrCreateWallet(ctx, userID)
}

// ListEntries returns the user's ledger, newest first
func (s *WalletService) ListEntries(ctx context.Context, userID string) ([]models.WalletEntry, error) {
	return s.store.ListWalletEntries(ctx, userID)
}

// CreditBookingEarning credits the owner's share of a confirmed booking. It
// reports false when the booking was credited before.
func (s *WalletService) CreditBookingEarning(ctx context.Context, bookingID string) (bool, error) {
	ctx, span := util.StartSpan(ctx, "WalletService.CreditBookingEarning", "booking_id", bookingID)
	defer span.End()

	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return false, util.RecordError(span, err)
	}
	if b.Status != models.BookingStatusConfirmed && b.Status != models.BookingStatusCompleted {
		return false, fmt.Errorf("booking %s is %s: %w", b.ID, b.Status, models.ErrConflict)
	}
	item, err := s.store.GetItem(ctx, b.ItemID)
	if err != nil {
		return false, util.RecordError(span, err)
	}

	share := s.OwnerShare(b.TotalAmount)
	wallet, applied, err := s.store.CreditWallet(ctx, item.OwnerID, share, models.EntryKindBookingEarning, b.ID)
	if err != nil {
		return false, util.RecordError(span, fmt.Errorf("failed to credit wallet: %w", err))
	}
	if !applied {
		s.logger.Debug("Booking earning already credited", zap.String("booking_id", b.ID))
		return false, nil
	}

	util.WalletCreditsTotal.Inc()
	s.logger.Info("Wallet credited",
		zap.String("owner_id", item.OwnerID),
		zap.String("booking_id", b.ID),
		zap.Int64("amount", share))

	s.publish(ctx, &models.WalletEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeWalletCredited, item.OwnerID),
		UserID:    item.OwnerID,
		Amount:    share,
		Balance:   wallet.Balance,
	})
	return true, nil
}

// CreditMissedEarnings credits bookings confirmed before the cutoff whose
// earning never reached the ledger, for example when the consumer gave up on
// the confirmation event. It returns how many were credited.
func (s *WalletService) CreditMissedEarnings(ctx context.Context, before time.Time) (int, error) {
	bookings, err := s.store.ListUncreditedBookings(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("failed to list uncredited bookings: %w", err)
	}

	credited := 0
	for _, b := range bookings {
		applied, err := s.CreditBookingEarning(ctx, b.ID)
		if err != nil {
			s.logger.Error("Failed to credit missed earning", zap.String("booking_id", b.ID), zap.Error(err))
			continue
		}
		if applied {
			credited++
		}
	}
	if credited > 0 {
		s.logger.Warn("Credited missed booking earnings", zap.Int("count", credited))
	}
	return credited, nil
}

func (s *WalletService) publish(ctx context.Context, event *models.WalletEvent) {
	if err := s.publisher.PublishWalletEvent(ctx, event); err != nil {
		s.logger.Error("Failed to publish wallet event",
			zap.String("event_type", event.EventType),
			zap.String("user_id", event.UserID),
			zap.Error(err))
	}
}

// RequestWithdrawal holds amount from the balance pending admin approval
func (s *WalletService) RequestWithdrawal(ctx context.Context, userID string, req *WithdrawalRequest) (*models.WithdrawalRequest, error) {
	ctx, span := util.StartSpan(ctx, "WalletService.RequestWithdrawal", "user_id", userID)
	defer span.End()

	if req.Amount < s.minWithdrawal {
		return nil, fmt.Errorf("minimum withdrawal is %d: %w", s.minWithdrawal, models.ErrInvalidInput)
	}
	phone, err := payments.NormalizePhone(req.Phone)
	if err != nil {
		return nil, err
	}

	w := &models.WithdrawalRequest{
		ID:     uuid.New().String(),
		UserID: userID,
		Amount: req.Amount,
		Phone:  phone,
		Status: models.WithdrawalStatusPending,
	}
	wallet, err := s.store.CreateWithdrawal(ctx, w)
	if err != nil {
		return nil, util.RecordError(span, err)
	}

	util.WithdrawalsRequestedTotal.Inc()
	s.logger.Info("Withdrawal requested", zap.String("withdrawal_id", w.ID), zap.Int64("amount", w.Amount))
	s.publish(ctx, &models.WalletEvent{
		BaseEvent:    models.NewBaseEvent(models.EventTypeWithdrawalCreated, userID),
		UserID:       userID,
		Amount:       w.Amount,
		Balance:      wallet.Balance,
		WithdrawalID: w.ID,
		Status:       w.Status,
	})
	return w, nil
}

// ListWithdrawals returns the user's withdrawal requests
func (s *WalletService) ListWithdrawals(ctx context.Context, userID string) ([]models.WithdrawalRequest, error) {
	return s.store.ListWithdrawalsByUser(ctx, userID)
}

// ListPendingWithdrawals returns requests awaiting an admin decision
func (s *WalletService) ListPendingWithdrawals(ctx context.Context) ([]models.WithdrawalRequest, error) {
	return s.store.ListWithdrawalsByStatus(ctx, models.WithdrawalStatusPending)
}

// ApproveWithdrawal marks a pending request approved. The payout itself
// happens outside the service.
func (s *WalletService) ApproveWithdrawal(ctx context.Context, adminID, id string) (*models.WithdrawalRequest, error) {
	return s.process(ctx, adminID, id, models.WithdrawalStatusApproved, "")
}

// RejectWithdrawal marks a pending request rejected and returns the held
// amount to the balance
func (s *WalletService) RejectWithdrawal(ctx context.Context, adminID, id, note string) (*models.WithdrawalRequest, error) {
	return s.process(ctx, adminID, id, models.WithdrawalStatusRejected, note)
}

func (s *WalletService) process(ctx context.Context, adminID, id, status, note string) (*models.WithdrawalRequest, error) {
	ctx, span := util.StartSpan(ctx, "WalletService.ProcessWithdrawal", "withdrawal_id", id, "status", status)
	defer span.End()

	w, err := s.store.ProcessWithdrawal(ctx, id, status, adminID, note)
	if err != nil {
		return nil, util.RecordError(span, err)
	}

	util.WithdrawalsProcessedTotal.WithLabelValues(status).Inc()
	s.logger.Info("Withdrawal processed",
		zap.String("withdrawal_id", id),
		zap.String("status", status),
		zap.String("admin_id", adminID))

	eventType := models.EventTypeWithdrawalApproved
	if status == models.WithdrawalStatusRejected {
		eventType = models.EventTypeWithdrawalRejected
	}
	var balance int64
	if wallet, err := s.store.GetOrCreateWallet(ctx, w.UserID); err == nil {
		balance = wallet.Balance
	}
	s.publish(ctx, &models.WalletEvent{
		BaseEvent:    models.NewBaseEvent(eventType, w.UserID),
		UserID:       w.UserID,
		Amount:       w.Amount,
		Balance:      balance,
		WithdrawalID: w.ID,
		Status:       w.Status,
	})
	return w, nil
}
