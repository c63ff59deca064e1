package models

import "time"

// Profile mirrors an authenticated user. The id is the auth subject.
type Profile struct {
	ID        string    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	FullName  string    `db:"full_name" json:"full_name"`
	Phone     string    `db:"phone" json:"phone"`
	AvatarURL string    `db:"avatar_url" json:"avatar_url"`
	Role      string    `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Category groups items for browsing
type Category struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Slug      string    `db:"slug" json:"slug"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Item is a rentable listing owned by a user
type Item struct {
	ID          string    `db:"id" json:"id"`
	OwnerID     string    `db:"owner_id" json:"owner_id"`
	CategoryID  *string   `db:"category_id" json:"category_id,omitempty"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	PricePerDay int64     `db:"price_per_day" json:"price_per_day"`
	Location    string    `db:"location" json:"location"`
	ImageURL    string    `db:"image_url" json:"image_url"`
	Status      string    `db:"status" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Booking reserves an item for a date range. EndDate is exclusive.
type Booking struct {
	ID          string    `db:"id" json:"id"`
	ItemID      string    `db:"item_id" json:"item_id"`
	RenterID    string    `db:"renter_id" json:"renter_id"`
	StartDate   time.Time `db:"start_date" json:"start_date"`
	EndDate     time.Time `db:"end_date" json:"end_date"`
	TotalAmount int64     `db:"total_amount" json:"total_amount"`
	Status      string    `db:"status" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Days is the number of rental days covered by the booking
func (b *Booking) Days() int64 {
	return int64(b.EndDate.Sub(b.StartDate).Hours() / 24)
}

// Subscription is a paid plan that lifts the free listing limit
type Subscription struct {
	ID        string     `db:"id" json:"id"`
	UserID    string     `db:"user_id" json:"user_id"`
	Plan      string     `db:"plan" json:"plan"`
	Amount    int64      `db:"amount" json:"amount"`
	Status    string     `db:"status" json:"status"`
	StartsAt  *time.Time `db:"starts_at" json:"starts_at,omitempty"`
	ExpiresAt *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// Transaction is one payment attempt with a provider
type Transaction struct {
	ID                string    `db:"id" json:"id"`
	UserID            string    `db:"user_id" json:"user_id"`
	BookingID         *string   `db:"booking_id" json:"booking_id,omitempty"`
	SubscriptionID    *string   `db:"subscription_id" json:"subscription_id,omitempty"`
	Provider          string    `db:"provider" json:"provider"`
	Amount            int64     `db:"amount" json:"amount"`
	Currency          string    `db:"currency" json:"currency"`
	Status            string    `db:"status" json:"status"`
	TrackingID        string    `db:"tracking_id" json:"tracking_id"`
	MerchantReference string    `db:"merchant_reference" json:"merchant_reference"`
	Phone             string    `db:"phone" json:"phone,omitempty"`
	ProviderReference string    `db:"provider_reference" json:"provider_reference,omitempty"`
	ResultDesc        string    `db:"result_desc" json:"result_desc,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// Wallet holds an owner's withdrawable earnings
type Wallet struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Balance   int64     `db:"balance" json:"balance"`
	Currency  string    `db:"currency" json:"currency"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// WalletEntry is a signed ledger line; positive amounts credit the wallet.
type WalletEntry struct {
	ID        string    `db:"id" json:"id"`
	WalletID  string    `db:"wallet_id" json:"wallet_id"`
	Amount    int64     `db:"amount" json:"amount"`
	Kind      string    `db:"kind" json:"kind"`
	Reference string    `db:"reference" json:"reference"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// WithdrawalRequest is a payout request approved out of band
type WithdrawalRequest struct {
	ID          string     `db:"id" json:"id"`
	UserID      string     `db:"user_id" json:"user_id"`
	Amount      int64      `db:"amount" json:"amount"`
	Phone       string     `db:"phone" json:"phone"`
	Status      string     `db:"status" json:"status"`
	Note        string     `db:"note" json:"note,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	ProcessedAt *time.Time `db:"processed_at" json:"processed_at,omitempty"`
	ProcessedBy *string    `db:"processed_by" json:"processed_by,omitempty"`
}

// Message is a direct message between two users, optionally about an item
type Message struct {
	ID          string     `db:"id" json:"id"`
	SenderID    string     `db:"sender_id" json:"sender_id"`
	RecipientID string     `db:"recipient_id" json:"recipient_id"`
	ItemID      *string    `db:"item_id" json:"item_id,omitempty"`
	Body        string     `db:"body" json:"body"`
	ReadAt      *time.Time `db:"read_at" json:"read_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// Profile roles
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Item statuses
const (
	ItemStatusAvailable   = "available"
	ItemStatusUnavailable = "unavailable"
	ItemStatusArchived    = "archived"
)

// Booking statuses
const (
	BookingStatusPending   = "pending"
	BookingStatusConfirmed = "confirmed"
	BookingStatusCancelled = "cancelled"
	BookingStatusCompleted = "completed"
)

// Subscription statuses
const (
	SubscriptionStatusPending   = "pending"
	SubscriptionStatusActive    = "active"
	SubscriptionStatusExpired   = "expired"
	SubscriptionStatusCancelled = "cancelled"
)

// Transaction statuses
const (
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
	TransactionStatusCancelled = "cancelled"
)

// Payment providers
const (
	ProviderMpesa   = "mpesa"
	ProviderPesapal = "pesapal"
)

// Wallet entry kinds
const (
	EntryKindBookingEarning    = "booking_earning"
	EntryKindWithdrawalHold    = "withdrawal_hold"
	EntryKindWithdrawalRelease = "withdrawal_release"
)

// Withdrawal statuses
const (
	WithdrawalStatusPending  = "pending"
	WithdrawalStatusApproved = "approved"
	WithdrawalStatusRejected = "rejected"
)

// DefaultCurrency is used for wallets and transactions
const DefaultCurrency = "KES"

// Plan describes a subscription tier
type Plan struct {
	Name     string        `json:"name"`
	Amount   int64         `json:"amount"`
	Duration time.Duration `json:"-"`
	Days     int           `json:"days"`
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
