package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rental-service/internal/broker"
	"rental-service/internal/models"
	"rental-service/internal/payments"
	"rental-service/internal/payments/mpesa"
	"rental-service/internal/payments/pesapal"
	"rental-service/internal/redisclient"
	"rental-service/internal/store"
	"rental-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const callbackLockTTL = 30 * time.Second

// errNotFinal means the provider has no final result for a payment yet
var errNotFinal = errors.New("payment has no final status yet")

// Providers holds the configured payment gateways. A nil client means the
// provider has no credentials.
type Providers struct {
	Mpesa   *mpesa.Client
	Pesapal *pesapal.Client
}

// PaymentTimeouts is how long a transaction may stay pending per provider.
// Hosted checkouts are often finished long after an STK prompt would have
// lapsed.
type PaymentTimeouts struct {
	Mpesa   time.Duration
	Pesapal time.Duration
}

func (t PaymentTimeouts) forProvider(provider string) time.Duration {
	if provider == models.ProviderPesapal {
		return t.Pesapal
	}
	return t.Mpesa
}

func (t PaymentTimeouts) shortest() time.Duration {
	if t.Pesapal < t.Mpesa {
		return t.Pesapal
	}
	return t.Mpesa
}

// PaymentService initiates provider payments and settles their callbacks
type PaymentService struct {
	store     *store.Store
	redis     *redisclient.Client
	publisher *broker.EventPublisher
	providers Providers
	plans     map[string]models.Plan
	timeouts  PaymentTimeouts
	logger    *zap.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(store *store.Store, redis *redisclient.Client, publisher *broker.EventPublisher,
	providers Providers, plans map[string]models.Plan, timeouts PaymentTimeouts) *PaymentService {
	return &PaymentService{
		store:     store,
		redis:     redis,
		publisher: publisher,
		providers: providers,
		plans:     plans,
		timeouts:  timeouts,
		logger:    util.GetLogger(),
	}
}

// InitiatePaymentRequest selects what to pay for. Exactly one of BookingID
// and SubscriptionID must be set.
type InitiatePaymentRequest struct {
	BookingID         *string `json:"booking_id" binding:"omitempty,uuid"`
	SubscriptionID    *string `json:"subscription_id" binding:"omitempty,uuid"`
	Phone             string  `json:"phone" binding:"omitempty,msisdn"`
	MerchantReference string  `json:"merchant_reference" binding:"omitempty,uuid"`
}

// InitiatePaymentResponse is returned to the client after initiation
type InitiatePaymentResponse struct {
	Transaction       *models.Transaction `json:"transaction"`
	CheckoutRequestID string              `json:"checkout_request_id,omitempty"`
	CustomerMessage   string              `json:"customer_message,omitempty"`
	RedirectURL       string              `json:"redirect_url,omitempty"`
}

// payable is the booking or subscription a transaction settles
type payable struct {
	amount         int64
	description    string
	bookingID      *string
	subscriptionID *string
}

func (s *PaymentService) resolvePayable(ctx context.Context, userID string, req *InitiatePaymentRequest) (*payable, error) {
	hasBooking := req.BookingID != nil && *req.BookingID != ""
	hasSub := req.SubscriptionID != nil && *req.SubscriptionID != ""
	if hasBooking == hasSub {
		return nil, fmt.Errorf("exactly one of booking_id and subscription_id is required: %w", models.ErrInvalidInput)
	}

	if hasBooking {
		b, err := s.store.GetBooking(ctx, *req.BookingID)
		if err != nil {
			return nil, err
		}
		if b.RenterID != userID {
			return nil, fmt.Errorf("booking %s: %w", b.ID, models.ErrForbidden)
		}
		if b.Status != models.BookingStatusPending {
			return nil, fmt.Errorf("booking %s is %s: %w", b.ID, b.Status, models.ErrConflict)
		}
		return &payable{amount: b.TotalAmount, description: "Booking", bookingID: &b.ID}, nil
	}

	sub, err := s.store.GetSubscription(ctx, *req.SubscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.UserID != userID {
		return nil, fmt.Errorf("subscription %s: %w", sub.ID, models.ErrForbidden)
	}
	if sub.Status != models.SubscriptionStatusPending {
		return nil, fmt.Errorf("subscription %s is %s: %w", sub.ID, sub.Status, models.ErrConflict)
	}
	return &payable{amount: sub.Amount, description: "Subscription " + sub.Plan, subscriptionID: &sub.ID}, nil
}

// existing returns the transaction already created under ref, if any
func (s *PaymentService) existing(ctx context.Context, userID, ref string) (*models.Transaction, error) {
	if ref == "" {
		return nil, nil
	}
	txn, err := s.store.GetTransactionByMerchantReference(ctx, ref)
	if err != nil || txn == nil {
		return nil, err
	}
	if txn.UserID != userID {
		return nil, fmt.Errorf("merchant_reference %s is taken: %w", ref, models.ErrConflict)
	}
	return txn, nil
}

// InitiateMpesa sends an STK push to the payer's phone
func (s *PaymentService) InitiateMpesa(ctx context.Context, userID string, req *InitiatePaymentRequest) (*InitiatePaymentResponse, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.InitiateMpesa", "user_id", userID)
	defer span.End()

	if s.providers.Mpesa == nil {
		return nil, fmt.Errorf("%s: %w", models.ProviderMpesa, models.ErrProviderUnavailable)
	}

	if txn, err := s.existing(ctx, userID, req.MerchantReference); err != nil || txn != nil {
		if txn != nil {
			return &InitiatePaymentResponse{Transaction: txn, CheckoutRequestID: txn.TrackingID}, nil
		}
		return nil, util.RecordError(span, err)
	}

	p, err := s.resolvePayable(ctx, userID, req)
	if err != nil {
		return nil, util.RecordError(span, err)
	}

	phone := req.Phone
	if phone == "" {
		if profile, err := s.store.GetProfile(ctx, userID); err == nil {
			phone = profile.Phone
		}
	}
	if phone == "" {
		return nil, fmt.Errorf("phone is required for M-Pesa: %w", models.ErrInvalidInput)
	}
	if phone, err = payments.NormalizePhone(phone); err != nil {
		return nil, err
	}

	ref := req.MerchantReference
	if ref == "" {
		ref = uuid.New().String()
	}

	start := time.Now()
	resp, err := s.providers.Mpesa.STKPush(ctx, mpesa.STKPushRequest{
		Phone:            phone,
		Amount:           p.amount,
		AccountReference: strings.ReplaceAll(ref, "-", ""),
		Description:      p.description,
	})
	util.PaymentInitiationLatency.WithLabelValues(models.ProviderMpesa).Observe(time.Since(start).Seconds())
	if err != nil {
		util.PaymentsInitiationFailedTotal.WithLabelValues(models.ProviderMpesa, "provider").Inc()
		s.logger.Error("STK push failed", zap.String("user_id", userID), zap.Error(err))
		return nil, util.RecordError(span, err)
	}

	txn := &models.Transaction{
		ID:                uuid.New().String(),
		UserID:            userID,
		BookingID:         p.bookingID,
		SubscriptionID:    p.subscriptionID,
		Provider:          models.ProviderMpesa,
		Amount:            p.amount,
		Currency:          models.DefaultCurrency,
		Status:            models.TransactionStatusPending,
		TrackingID:        resp.CheckoutRequestID,
		MerchantReference: ref,
		Phone:             phone,
	}
	if txn, err = s.record(ctx, txn); err != nil {
		return nil, util.RecordError(span, err)
	}

	return &InitiatePaymentResponse{
		Transaction:       txn,
		CheckoutRequestID: resp.CheckoutRequestID,
		CustomerMessage:   resp.CustomerMessage,
	}, nil
}

// InitiatePesapal submits a hosted checkout order and returns its redirect URL
func (s *PaymentService) InitiatePesapal(ctx context.Context, userID string, req *InitiatePaymentRequest) (*InitiatePaymentResponse, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.InitiatePesapal", "user_id", userID)
	defer span.End()

	if s.providers.Pesapal == nil {
		return nil, fmt.Errorf("%s: %w", models.ProviderPesapal, models.ErrProviderUnavailable)
	}

	if txn, err := s.existing(ctx, userID, req.MerchantReference); err != nil || txn != nil {
		if txn != nil {
			return &InitiatePaymentResponse{Transaction: txn}, nil
		}
		return nil, util.RecordError(span, err)
	}

	p, err := s.resolvePayable(ctx, userID, req)
	if err != nil {
		return nil, util.RecordError(span, err)
	}

	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, util.RecordError(span, err)
	}
	billing := pesapal.BillingAddress{EmailAddress: profile.Email, PhoneNumber: profile.Phone}
	if req.Phone != "" {
		billing.PhoneNumber = req.Phone
	}
	if name := strings.Fields(profile.FullName); len(name) > 0 {
		billing.FirstName = name[0]
		billing.LastName = strings.Join(name[1:], " ")
	}

	ref := req.MerchantReference
	if ref == "" {
		ref = uuid.New().String()
	}

	start := time.Now()
	order, err := s.providers.Pesapal.SubmitOrder(ctx, pesapal.OrderRequest{
		MerchantReference: ref,
		Amount:            p.amount,
		Description:       p.description,
		Billing:           billing,
	})
	util.PaymentInitiationLatency.WithLabelValues(models.ProviderPesapal).Observe(time.Since(start).Seconds())
	if err != nil {
		util.PaymentsInitiationFailedTotal.WithLabelValues(models.ProviderPesapal, "provider").Inc()
		s.logger.Error("Pesapal order failed", zap.String("user_id", userID), zap.Error(err))
		return nil, util.RecordError(span, err)
	}

	txn := &models.Transaction{
		ID:                uuid.New().String(),
		UserID:            userID,
		BookingID:         p.bookingID,
		SubscriptionID:    p.subscriptionID,
		Provider:          models.ProviderPesapal,
		Amount:            p.amount,
		Currency:          models.DefaultCurrency,
		Status:            models.TransactionStatusPending,
		TrackingID:        order.OrderTrackingID,
		MerchantReference: ref,
		Phone:             billing.PhoneNumber,
	}
	if txn, err = s.record(ctx, txn); err != nil {
		return nil, util.RecordError(span, err)
	}

	return &InitiatePaymentResponse{Transaction: txn, RedirectURL: order.RedirectURL}, nil
}

// record stores a new pending transaction. A concurrent request that won the
// race on the same merchant reference is returned instead.
func (s *PaymentService) record(ctx context.Context, txn *models.Transaction) (*models.Transaction, error) {
	if err := s.store.CreateTransaction(ctx, txn); err != nil {
		if errors.Is(err, models.ErrConflict) {
			if prior, _ := s.existing(ctx, txn.UserID, txn.MerchantReference); prior != nil {
				return prior, nil
			}
		}
		return nil, fmt.Errorf("failed to record transaction: %w", err)
	}

	util.PaymentsInitiatedTotal.WithLabelValues(txn.Provider).Inc()
	s.logger.Info("Payment initiated",
		zap.String("transaction_id", txn.ID),
		zap.String("provider", txn.Provider),
		zap.Int64("amount", txn.Amount))
	s.publishPayment(ctx, txn)
	return txn, nil
}

func (s *PaymentService) publishPayment(ctx context.Context, txn *models.Transaction) {
	event := &models.PaymentEvent{
		BaseEvent:      models.NewBaseEvent(models.PaymentEventType(txn.Status), txn.UserID),
		TransactionID:  txn.ID,
		UserID:         txn.UserID,
		Provider:       txn.Provider,
		Amount:         txn.Amount,
		Status:         txn.Status,
		BookingID:      txn.BookingID,
		SubscriptionID: txn.SubscriptionID,
	}
	if err := s.publisher.PublishPaymentEvent(ctx, event); err != nil {
		s.logger.Error("Failed to publish payment event", zap.String("transaction_id", txn.ID), zap.Error(err))
	}
}

// HandleMpesaCallback settles the transaction named by an STK callback.
// Anyone can post to the callback URL, so the status written is the one
// Daraja reports when queried, and a success whose amount differs from the
// transaction is rejected. Unknown checkout ids are logged and ignored so
// Daraja stops retrying.
func (s *PaymentService) HandleMpesaCallback(ctx context.Context, cb *mpesa.Callback) error {
	ctx, span := util.StartSpan(ctx, "PaymentService.HandleMpesaCallback")
	defer span.End()

	stk := cb.Body.STKCallback
	txn, err := s.store.GetTransactionByTrackingID(ctx, stk.CheckoutRequestID)
	if errors.Is(err, models.ErrNotFound) {
		util.PaymentCallbacksTotal.WithLabelValues(models.ProviderMpesa, "unknown").Inc()
		s.logger.Warn("Callback for unknown checkout", zap.String("checkout_request_id", stk.CheckoutRequestID))
		return nil
	}
	if err != nil {
		return util.RecordError(span, err)
	}

	if txn.Status != models.TransactionStatusPending {
		util.PaymentCallbacksTotal.WithLabelValues(models.ProviderMpesa, "duplicate").Inc()
		return nil
	}

	if stk.Status() == models.TransactionStatusCompleted {
		if amount, ok := stk.Amount(); ok && amount != float64(txn.Amount) {
			util.PaymentCallbacksTotal.WithLabelValues(models.ProviderMpesa, "rejected").Inc()
			s.logger.Warn("Callback amount does not match transaction",
				zap.String("transaction_id", txn.ID),
				zap.Int64("expected", txn.Amount),
				zap.Float64("reported", amount))
			return nil
		}
	}

	status, _, desc, err := s.providerStatus(ctx, txn)
	if errors.Is(err, errNotFinal) {
		util.PaymentCallbacksTotal.WithLabelValues(models.ProviderMpesa, "unconfirmed").Inc()
		s.logger.Warn("Callback not confirmed by Daraja yet",
			zap.String("transaction_id", txn.ID),
			zap.Int("callback_result_code", stk.ResultCode))
		return nil
	}
	if err != nil {
		util.PaymentCallbacksTotal.WithLabelValues(models.ProviderMpesa, "error").Inc()
		return util.RecordError(span, err)
	}

	receipt := ""
	if status == models.TransactionStatusCompleted {
		receipt = stk.ReceiptNumber()
	}
	return util.RecordError(span, s.settle(ctx, txn, status, receipt, desc))
}

// providerStatus asks the transaction's provider for its final status.
// errNotFinal means the customer has not finished paying.
func (s *PaymentService) providerStatus(ctx context.Context, txn *models.Transaction) (status, providerRef, desc string, err error) {
	switch txn.Provider {
	case models.ProviderMpesa:
		if s.providers.Mpesa == nil {
			return "", "", "", fmt.Errorf("%s: %w", models.ProviderMpesa, models.ErrProviderUnavailable)
		}
		resp, err := s.providers.Mpesa.STKQuery(ctx, txn.TrackingID)
		if errors.Is(err, mpesa.ErrPending) {
			return "", "", "", errNotFinal
		}
		if err != nil {
			return "", "", "", err
		}
		if !resp.Final() {
			return "", "", "", errNotFinal
		}
		return resp.Status(), "", resp.ResultDesc, nil

	case models.ProviderPesapal:
		if s.providers.Pesapal == nil {
			return "", "", "", fmt.Errorf("%s: %w", models.ProviderPesapal, models.ErrProviderUnavailable)
		}
		st, err := s.providers.Pesapal.GetTransactionStatus(ctx, txn.TrackingID)
		if err != nil {
			return "", "", "", err
		}
		desc := st.PaymentStatusDescription
		if desc == "" {
			desc = st.Description
		}
		if st.StatusCode == pesapal.StatusInvalid {
			return "", "", desc, errNotFinal
		}
		return st.TransactionStatus(), st.ConfirmationCode, desc, nil
	}
	return "", "", "", fmt.Errorf("unknown provider %q: %w", txn.Provider, models.ErrInvalidInput)
}

// HandlePesapalIPN fetches the status of the notified order and settles its
// transaction. A provider error is returned so Pesapal retries the IPN.
func (s *PaymentService) HandlePesapalIPN(ctx context.Context, trackingID, merchantRef string) error {
	ctx, span := util.StartSpan(ctx, "PaymentService.HandlePesapalIPN", "order_tracking_id", trackingID)
	defer span.End()

	if s.providers.Pesapal == nil {
		return fmt.Errorf("%s: %w", models.ProviderPesapal, models.ErrProviderUnavailable)
	}

	txn, err := s.store.GetTransactionByTrackingID(ctx, trackingID)
	if errors.Is(err, models.ErrNotFound) && merchantRef != "" {
		txn, err = s.store.GetTransactionByMerchantReference(ctx, merchantRef)
		if txn == nil && err == nil {
			err = models.ErrNotFound
		}
	}
	if errors.Is(err, models.ErrNotFound) {
		util.PaymentCallbacksTotal.WithLabelValues(models.ProviderPesapal, "unknown").Inc()
		s.logger.Warn("IPN for unknown order", zap.String("order_tracking_id", trackingID), zap.String("merchant_reference", merchantRef))
		return nil
	}
	if err != nil {
		return util.RecordError(span, err)
	}

	if txn.Status != models.TransactionStatusPending {
		util.PaymentCallbacksTotal.WithLabelValues(models.ProviderPesapal, "duplicate").Inc()
		return nil
	}

	status, ref, desc, err := s.providerStatus(ctx, txn)
	if errors.Is(err, errNotFinal) {
		// An IPN for an order Pesapal calls invalid ends the payment
		status, err = models.TransactionStatusFailed, nil
	}
	if err != nil {
		util.PaymentCallbacksTotal.WithLabelValues(models.ProviderPesapal, "error").Inc()
		return util.RecordError(span, err)
	}
	return util.RecordError(span, s.settle(ctx, txn, status, ref, desc))
}

// settle applies a final status reported by a provider. Replays and
// concurrent deliveries of the same callback change nothing.
func (s *PaymentService) settle(ctx context.Context, txn *models.Transaction, status, providerRef, desc string) error {
	lockKey := "callback:" + txn.ID
	token, err := s.redis.AcquireLock(ctx, lockKey, callbackLockTTL)
	if errors.Is(err, redisclient.ErrLockHeld) {
		util.PaymentCallbacksTotal.WithLabelValues(txn.Provider, "duplicate").Inc()
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to lock transaction: %w", err)
	}
	defer func() {
		if err := s.redis.ReleaseLock(context.Background(), lockKey, token); err != nil {
			s.logger.Warn("Failed to release callback lock", zap.String("transaction_id", txn.ID), zap.Error(err))
		}
	}()

	st := store.Settlement{
		TransactionID:     txn.ID,
		Status:            status,
		ProviderReference: providerRef,
		ResultDesc:        payments.Truncate(desc, 255),
		BookingID:         txn.BookingID,
		SubscriptionID:    txn.SubscriptionID,
	}

	var sub *models.Subscription
	if txn.SubscriptionID != nil && status == models.TransactionStatusCompleted {
		if sub, err = s.store.GetSubscription(ctx, *txn.SubscriptionID); err != nil {
			return err
		}
		plan, ok := s.plans[sub.Plan]
		if !ok {
			return fmt.Errorf("subscription %s has unknown plan %q", sub.ID, sub.Plan)
		}
		st.ActiveFrom = time.Now().UTC()
		st.ActiveUntil = st.ActiveFrom.Add(plan.Duration)
	}

	result, err := s.store.SettleTransaction(ctx, st)
	if err != nil {
		return fmt.Errorf("failed to settle transaction: %w", err)
	}
	if !result.Settled {
		util.PaymentCallbacksTotal.WithLabelValues(txn.Provider, "duplicate").Inc()
		return nil
	}

	util.PaymentCallbacksTotal.WithLabelValues(txn.Provider, "settled").Inc()
	util.PaymentsSettledTotal.WithLabelValues(txn.Provider, status).Inc()
	s.logger.Info("Payment settled",
		zap.String("transaction_id", txn.ID),
		zap.String("status", status),
		zap.Bool("follow_on", result.FollowOn))

	txn.Status, txn.ProviderReference, txn.ResultDesc = status, providerRef, st.ResultDesc
	s.publishPayment(ctx, txn)

	if !result.FollowOn {
		return nil
	}
	switch {
	case txn.BookingID != nil:
		s.publishBookingConfirmed(ctx, *txn.BookingID)
	case sub != nil:
		s.publishSubscriptionActive(ctx, sub, st.ActiveUntil)
	}
	return nil
}

func (s *PaymentService) publishBookingConfirmed(ctx context.Context, bookingID string) {
	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		s.logger.Error("Failed to load confirmed booking", zap.String("booking_id", bookingID), zap.Error(err))
		return
	}
	item, err := s.store.GetItem(ctx, b.ItemID)
	if err != nil {
		s.logger.Error("Failed to load booked item", zap.String("item_id", b.ItemID), zap.Error(err))
		return
	}

	util.BookingsStatusTotal.WithLabelValues(models.BookingStatusConfirmed).Inc()
	event := &models.BookingEvent{
		BaseEvent:   models.NewBaseEvent(models.EventTypeBookingConfirmed, item.OwnerID, b.RenterID),
		BookingID:   b.ID,
		ItemID:      b.ItemID,
		OwnerID:     item.OwnerID,
		RenterID:    b.RenterID,
		TotalAmount: b.TotalAmount,
		Status:      b.Status,
	}
	if err := s.publisher.PublishBookingEvent(ctx, event); err != nil {
		s.logger.Error("Failed to publish booking confirmation", zap.String("booking_id", b.ID), zap.Error(err))
	}
}

func (s *PaymentService) publishSubscriptionActive(ctx context.Context, sub *models.Subscription, expiresAt time.Time) {
	event := &models.SubscriptionEvent{
		BaseEvent:      models.NewBaseEvent(models.EventTypeSubscriptionActive, sub.UserID),
		SubscriptionID: sub.ID,
		UserID:         sub.UserID,
		Plan:           sub.Plan,
		ExpiresAt:      &expiresAt,
	}
	if err := s.publisher.PublishSubscriptionEvent(ctx, event); err != nil {
		s.logger.Error("Failed to publish subscription activation", zap.String("subscription_id", sub.ID), zap.Error(err))
	}
}

// GetTransaction returns one of the payer's transactions
func (s *PaymentService) GetTransaction(ctx context.Context, userID, id string) (*models.Transaction, error) {
	txn, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if txn.UserID != userID {
		return nil, fmt.Errorf("transaction %s: %w", id, models.ErrForbidden)
	}
	return txn, nil
}

// ListTransactions returns the payer's transactions
func (s *PaymentService) ListTransactions(ctx context.Context, userID string) ([]models.Transaction, error) {
	return s.store.ListTransactionsByUser(ctx, userID)
}

// ExpireStalePayments resolves pending transactions older than their
// provider's timeout. The provider is asked first: a final result is
// settled like a callback, otherwise the transaction fails as expired and
// its booking or subscription is left untouched. It returns how many
// transactions left pending.
func (s *PaymentService) ExpireStalePayments(ctx context.Context, now time.Time) (int, error) {
	stale, err := s.store.ListPendingTransactionsBefore(ctx, now.Add(-s.timeouts.shortest()))
	if err != nil {
		return 0, fmt.Errorf("failed to list pending transactions: %w", err)
	}

	resolved, expired := 0, 0
	for i := range stale {
		txn := &stale[i]
		if txn.CreatedAt.After(now.Add(-s.timeouts.forProvider(txn.Provider))) {
			continue
		}

		status, ref, desc, err := s.providerStatus(ctx, txn)
		if err == nil {
			if err := s.settle(ctx, txn, status, ref, desc); err != nil {
				s.logger.Error("Failed to settle stale transaction", zap.String("transaction_id", txn.ID), zap.Error(err))
				continue
			}
			resolved++
			continue
		}
		if !errors.Is(err, errNotFinal) {
			s.logger.Warn("Could not query payment status before expiry",
				zap.String("transaction_id", txn.ID),
				zap.String("provider", txn.Provider),
				zap.Error(err))
		}

		result, err := s.store.SettleTransaction(ctx, store.Settlement{
			TransactionID: txn.ID,
			Status:        models.TransactionStatusFailed,
			ResultDesc:    "expired",
		})
		if err != nil {
			s.logger.Error("Failed to expire transaction", zap.String("transaction_id", txn.ID), zap.Error(err))
			continue
		}
		if !result.Settled {
			continue
		}
		expired++
		txn.Status, txn.ResultDesc = models.TransactionStatusFailed, "expired"
		util.PaymentsSettledTotal.WithLabelValues(txn.Provider, txn.Status).Inc()
		s.publishPayment(ctx, txn)
	}

	if expired > 0 {
		util.MaintenanceExpiredTotal.WithLabelValues("payment").Add(float64(expired))
	}
	if resolved+expired > 0 {
		s.logger.Info("Stale payments resolved", zap.Int("settled", resolved), zap.Int("expired", expired))
	}
	return resolved + expired, nil
}
