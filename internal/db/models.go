package db

import (
	"github.com/jackc/pgx/v5/pgtype"
)

// Booking lifecycle states.
const (
	BookingStatusPendingPayment = "PENDING_PAYMENT"
	BookingStatusConfirmed      = "CONFIRMED"
	BookingStatusPaid           = "PAID"
	BookingStatusCanceled       = "CANCELED"
	BookingStatusRefunded       = "REFUNDED"
)

// Installment states.
const (
	InstallmentStatusPending = "PENDING"
	InstallmentStatusPaid    = "PAID"
	InstallmentStatusVoided  = "VOIDED"
)

// Payment states.
const (
	PaymentStatusPending  = "PENDING"
	PaymentStatusPaid     = "PAID"
	PaymentStatusFailed   = "FAILED"
	PaymentStatusExpired  = "EXPIRED"
	PaymentStatusRefunded = "REFUNDED"
)

// Waitlist states.
const (
	WaitlistStatusWaiting   = "WAITING"
	WaitlistStatusNotified  = "NOTIFIED"
	WaitlistStatusExpired   = "EXPIRED"
	WaitlistStatusConverted = "CONVERTED"
)

// Promo kinds.
const (
	PromoKindFixedAmount = "fixed_amount"
	PromoKindPercent     = "percent"
)

type Admin struct {
	ID           pgtype.UUID
	Email        string
	PasswordHash string
	CreatedAt    pgtype.Timestamptz
}

type Retreat struct {
	ID        pgtype.UUID
	Slug      string
	Title     string
	Location  string
	StartDate pgtype.Timestamptz
	EndDate   pgtype.Timestamptz
	Published bool
	CreatedAt pgtype.Timestamptz
	UpdatedAt pgtype.Timestamptz
}

type Room struct {
	ID               pgtype.UUID
	RetreatID        pgtype.UUID
	Name             string
	Capacity         int32
	BookedCount      int32
	RegularPrice     int64
	EarlyBirdPrice   int64
	EarlyBirdEnabled bool
	DepositPrice     int64
	CreatedAt        pgtype.Timestamptz
	UpdatedAt        pgtype.Timestamptz
}

type PromoCode struct {
	ID            pgtype.UUID
	Code          string
	Kind          string
	Value         int64
	PercentBps    pgtype.Int4
	UsageLimit    pgtype.Int4
	UsedCount     int32
	PerEmailLimit pgtype.Int4
	ValidFrom     pgtype.Timestamptz
	ValidTo       pgtype.Timestamptz
	RetreatIds    []pgtype.UUID
	CreatedAt     pgtype.Timestamptz
	UpdatedAt     pgtype.Timestamptz
}

type PromoRedemption struct {
	ID        pgtype.UUID
	PromoID   pgtype.UUID
	BookingID pgtype.UUID
	Email     string
	Amount    int64
	CreatedAt pgtype.Timestamptz
}

type Booking struct {
	ID              pgtype.UUID
	RetreatID       pgtype.UUID
	RoomID          pgtype.UUID
	Status          string
	CustomerName    string
	CustomerEmail   string
	BillingCountry  string
	CustomerType    string
	VatID           pgtype.Text
	VatIDValidated  bool
	PaymentType     string
	Currency        string
	PricingSubtotal int64
	PricingDiscount int64
	DiscountSource  string
	PricingVat      int64
	PricingTotal    int64
	DueToday        int64
	PromoCode       pgtype.Text
	CreatedAt       pgtype.Timestamptz
	UpdatedAt       pgtype.Timestamptz
}

type BookingInstallment struct {
	ID        pgtype.UUID
	BookingID pgtype.UUID
	Position  int32
	Percent   int32
	Amount    int64
	DueRule   string
	DueAt     pgtype.Timestamptz
	Status    string
	PaidAt    pgtype.Timestamptz
}

type Payment struct {
	ID            pgtype.UUID
	BookingID     pgtype.UUID
	InstallmentID pgtype.UUID
	Provider      string
	ProviderRef   string
	Amount        int64
	Status        string
	CreatedAt     pgtype.Timestamptz
	UpdatedAt     pgtype.Timestamptz
}

type WaitlistEntry struct {
	ID             pgtype.UUID
	RetreatID      pgtype.UUID
	RoomID         pgtype.UUID
	Email          string
	Position       int32
	Status         string
	NotifiedAt     pgtype.Timestamptz
	NotifyExpireAt pgtype.Timestamptz
	CreatedAt      pgtype.Timestamptz
}

type DomainEvent struct {
	ID          pgtype.UUID
	Topic       string
	AggregateID pgtype.UUID
	Payload     []byte
	OccurredAt  pgtype.Timestamptz
}
