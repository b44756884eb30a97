package booking

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/sagewood/backend-retreats/internal/common"
	"github.com/sagewood/backend-retreats/internal/db"
	"github.com/sagewood/backend-retreats/internal/events"
	"github.com/sagewood/backend-retreats/internal/obs"
	"github.com/sagewood/backend-retreats/internal/payment"
	"github.com/sagewood/backend-retreats/internal/pricing"
	"github.com/sagewood/backend-retreats/internal/promo"
	"github.com/sagewood/backend-retreats/internal/retreat"
)

// Service orchestrates quoting and booking creation. Quote and Create assemble
// the price breakdown through the same pricing path so the preview a customer
// sees is exactly what they are charged.
type Service struct {
	Q           *db.Queries
	Pool        *pgxpool.Pool
	Promo       *promo.Service
	Payments    payment.Provider
	Events      *events.Bus
	Retreats    *retreat.Service
	Waitlist    payment.WaitlistPromoter
	VAT         pricing.VATConfig
	Currency    string
	CheckoutTTL time.Duration
	Now         func() time.Time
	Log         zerolog.Logger
}

// QuoteInput is the shared request shape for quoting and booking.
type QuoteInput struct {
	RoomID       string `json:"roomId" validate:"required,uuid"`
	Country      string `json:"country" validate:"required,len=2"`
	CustomerType string `json:"customerType" validate:"omitempty,oneof=private business"`
	VATID        string `json:"vatId"`
	PaymentType  string `json:"paymentType" validate:"omitempty,oneof=full scheduled"`
	PromoCode    string `json:"promoCode"`
	Email        string `json:"email" validate:"omitempty,email"`
}

// CreateInput extends QuoteInput with the customer identity.
type CreateInput struct {
	QuoteInput
	CustomerName string `json:"customerName" validate:"required"`
	Email        string `json:"email" validate:"required,email"`
}

// DiscountView is the wire shape of an applied discount.
type DiscountView struct {
	Amount int64  `json:"amount"`
	Source string `json:"source"`
	// EarlyBirdAlternative carries the early-bird saving that lost to a promo
	// code so the UI can render it crossed out.
	EarlyBirdAlternative int64 `json:"earlyBirdAlternative,omitempty"`
}

// InstallmentView is one dated entry of the payment plan.
type InstallmentView struct {
	Position int       `json:"position"`
	Percent  int       `json:"percent"`
	Amount   int64     `json:"amount"`
	DueRule  string    `json:"dueRule"`
	DueAt    time.Time `json:"dueAt"`
}

// PriceView is the full wire price breakdown.
type PriceView struct {
	Currency    string            `json:"currency"`
	Subtotal    int64             `json:"subtotal"`
	Discount    DiscountView      `json:"discount"`
	VATRateBps  int               `json:"vatRateBps"`
	VATAmount   int64             `json:"vatAmount"`
	Total       int64             `json:"total"`
	DueToday    int64             `json:"dueToday"`
	PaymentType string            `json:"paymentType"`
	Schedule    []InstallmentView `json:"schedule"`
}

// QuoteOutput is the response of the quote endpoint.
type QuoteOutput struct {
	Room struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"room"`
	Price            PriceView `json:"price"`
	MonthsUntilStart int       `json:"monthsUntilStart"`
	PromoReason      string    `json:"promoReason,omitempty"`
}

// CreateOutput is the response of booking creation.
type CreateOutput struct {
	BookingID string    `json:"bookingId"`
	Status    string    `json:"status"`
	Price     PriceView `json:"price"`
	Payment   struct {
		Provider   string `json:"provider,omitempty"`
		PaymentURL string `json:"paymentUrl,omitempty"`
		ExpiresAt  int64  `json:"expiresAt,omitempty"`
	} `json:"payment"`
}

// ErrSoldOut is returned when the room has no remaining capacity.
var ErrSoldOut = errors.New("room is sold out")

// Quote computes the price breakdown for a room without reserving anything.
func (s *Service) Quote(ctx context.Context, in QuoteInput) (QuoteOutput, error) {
	if s == nil || s.Q == nil {
		return QuoteOutput{}, errors.New("booking service not configured")
	}
	roomID, err := parsePgUUID(in.RoomID)
	if err != nil {
		return QuoteOutput{}, common.NewAppError("BAD_REQUEST", "invalid room id", http.StatusBadRequest, err)
	}
	room, err := s.Q.GetRoomByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return QuoteOutput{}, common.NewAppError("NOT_FOUND", "room not found", http.StatusNotFound, err)
		}
		return QuoteOutput{}, err
	}
	ret, err := s.Q.GetRetreatByID(ctx, room.RetreatID)
	if err != nil {
		return QuoteOutput{}, err
	}
	summary, months, reason, err := s.assemble(ctx, room, ret, in)
	if err != nil {
		return QuoteOutput{}, err
	}
	out := QuoteOutput{
		Price:            s.toPriceView(summary, paymentTypeFor(in.PaymentType, months)),
		MonthsUntilStart: months,
		PromoReason:      reason,
	}
	out.Room.ID = uuid.UUID(room.ID.Bytes).String()
	out.Room.Name = room.Name
	return out, nil
}

// Create reserves a spot, persists the booking with its installment plan, and
// opens a payment session for the amount due today. The room row is locked so
// the capacity check and the booked counter update cannot race.
func (s *Service) Create(ctx context.Context, in CreateInput) (CreateOutput, error) {
	if s == nil || s.Q == nil || s.Pool == nil {
		return CreateOutput{}, errors.New("booking service not configured")
	}
	roomID, err := parsePgUUID(in.RoomID)
	if err != nil {
		return CreateOutput{}, common.NewAppError("BAD_REQUEST", "invalid room id", http.StatusBadRequest, err)
	}

	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return CreateOutput{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	qtx := s.Q.WithTx(tx)

	room, err := qtx.GetRoomForUpdate(ctx, roomID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CreateOutput{}, common.NewAppError("NOT_FOUND", "room not found", http.StatusNotFound, err)
		}
		return CreateOutput{}, err
	}
	if room.BookedCount >= room.Capacity {
		return CreateOutput{}, common.NewAppError("SOLD_OUT", "room is sold out", http.StatusConflict, ErrSoldOut)
	}
	ret, err := qtx.GetRetreatByID(ctx, room.RetreatID)
	if err != nil {
		return CreateOutput{}, err
	}

	// Re-evaluate the promo inside the transaction so the persisted price
	// reflects the state at reservation time, not at preview time.
	in.QuoteInput.Email = in.Email
	summary, months, _, err := s.assembleWith(ctx, &promo.Service{Q: qtx, Now: s.Now}, room, ret, in.QuoteInput)
	if err != nil {
		return CreateOutput{}, err
	}
	paymentType := paymentTypeFor(in.PaymentType, months)

	var promoCode pgtype.Text
	if summary.Discount.Source == pricing.SourcePromoCode {
		promoCode = pgtype.Text{String: strings.ToUpper(strings.TrimSpace(in.PromoCode)), Valid: true}
	}
	booking, err := qtx.CreateBooking(ctx, db.CreateBookingParams{
		RetreatID:       room.RetreatID,
		RoomID:          room.ID,
		Status:          db.BookingStatusPendingPayment,
		CustomerName:    strings.TrimSpace(in.CustomerName),
		CustomerEmail:   strings.ToLower(strings.TrimSpace(in.Email)),
		BillingCountry:  strings.ToUpper(strings.TrimSpace(in.Country)),
		CustomerType:    customerTypeFor(in.CustomerType),
		VatID:           nullableText(in.VATID),
		VatIDValidated:  ValidVATID(in.Country, in.VATID),
		PaymentType:     string(paymentType),
		Currency:        s.Currency,
		PricingSubtotal: summary.Subtotal,
		PricingDiscount: summary.Discount.Amount,
		DiscountSource:  summary.Discount.Source.String(),
		PricingVat:      summary.VATAmount,
		PricingTotal:    summary.Total,
		DueToday:        summary.DueToday,
		PromoCode:       promoCode,
	})
	if err != nil {
		return CreateOutput{}, err
	}
	var firstInstallment db.BookingInstallment
	for i, entry := range summary.Installments {
		inst, err := qtx.InsertBookingInstallment(ctx, db.InsertBookingInstallmentParams{
			BookingID: booking.ID,
			Position:  int32(i + 1),
			Percent:   int32(entry.Percent),
			Amount:    entry.Amount,
			DueRule:   entry.DueRule,
			DueAt:     pgtype.Timestamptz{Time: entry.DueAt, Valid: true},
		})
		if err != nil {
			return CreateOutput{}, err
		}
		if i == 0 {
			firstInstallment = inst
		}
	}
	if err := qtx.IncrementRoomBooked(ctx, room.ID); err != nil {
		return CreateOutput{}, err
	}
	// A booker holding a waitlist reservation window claims it now, so the
	// expiry sweep cannot lapse the entry and promote into a taken spot.
	converted, err := qtx.MarkWaitlistConverted(ctx, db.MarkWaitlistConvertedParams{
		RoomID: room.ID,
		Email:  strings.ToLower(strings.TrimSpace(in.Email)),
	})
	if err != nil {
		return CreateOutput{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return CreateOutput{}, err
	}
	if converted > 0 && obs.WaitlistEventsTotal != nil {
		obs.WaitlistEventsTotal.WithLabelValues("converted").Inc()
	}

	s.invalidateRetreat(ctx, ret.Slug)
	if s.Events != nil {
		_, _ = s.Events.Emit(ctx, events.TopicBookingCreated, booking.ID, map[string]any{
			"bookingId": uuid.UUID(booking.ID.Bytes).String(),
			"email":     booking.CustomerEmail,
			"total":     summary.Total,
			"dueToday":  summary.DueToday,
		})
	}

	out := CreateOutput{
		BookingID: uuid.UUID(booking.ID.Bytes).String(),
		Status:    booking.Status,
		Price:     s.toPriceView(summary, paymentType),
	}
	if s.Payments != nil {
		session, err := s.Payments.CreateSession(ctx, payment.SessionRequest{
			PaymentRef:  out.BookingID,
			BookingID:   out.BookingID,
			Amount:      summary.DueToday,
			Currency:    s.Currency,
			Email:       booking.CustomerEmail,
			Description: fmt.Sprintf("%s, %s", ret.Title, room.Name),
			ExpiresIn:   s.CheckoutTTL,
		})
		if err != nil {
			s.Log.Error().Err(err).Str("booking_id", out.BookingID).Msg("payment session creation failed")
			return out, common.NewAppError("PAYMENT_SESSION_FAILED", "booking reserved but payment session could not be opened", http.StatusBadGateway, err)
		}
		if _, err := s.Q.InsertPayment(ctx, db.InsertPaymentParams{
			BookingID:     booking.ID,
			InstallmentID: firstInstallment.ID,
			Provider:      session.Provider,
			ProviderRef:   session.SessionID,
			Amount:        summary.DueToday,
			Status:        db.PaymentStatusPending,
		}); err != nil {
			return out, err
		}
		out.Payment.Provider = session.Provider
		out.Payment.PaymentURL = session.PaymentURL
		out.Payment.ExpiresAt = session.ExpiresAt
	}
	return out, nil
}

// Cancel voids a pending or confirmed booking, frees the spot, and promotes
// the next waitlist entry.
func (s *Service) Cancel(ctx context.Context, bookingID uuid.UUID) (db.Booking, error) {
	if s == nil || s.Q == nil || s.Pool == nil {
		return db.Booking{}, errors.New("booking service not configured")
	}
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return db.Booking{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	qtx := s.Q.WithTx(tx)

	booking, err := qtx.GetBookingByID(ctx, pgtype.UUID{Bytes: bookingID, Valid: true})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return db.Booking{}, common.NewAppError("NOT_FOUND", "booking not found", http.StatusNotFound, err)
		}
		return db.Booking{}, err
	}
	switch booking.Status {
	case db.BookingStatusCanceled, db.BookingStatusRefunded:
		return booking, nil
	}
	booking, err = qtx.UpdateBookingStatus(ctx, db.UpdateBookingStatusParams{ID: booking.ID, Status: db.BookingStatusCanceled})
	if err != nil {
		return db.Booking{}, err
	}
	if err := qtx.VoidInstallmentsByBooking(ctx, booking.ID); err != nil {
		return db.Booking{}, err
	}
	if err := qtx.DecrementRoomBooked(ctx, booking.RoomID); err != nil {
		return db.Booking{}, err
	}
	ret, retErr := qtx.GetRetreatByID(ctx, booking.RetreatID)
	if err := tx.Commit(ctx); err != nil {
		return db.Booking{}, err
	}

	if retErr == nil {
		s.invalidateRetreat(ctx, ret.Slug)
	}
	if s.Waitlist != nil {
		if err := s.Waitlist.PromoteNext(ctx, booking.RoomID); err != nil {
			s.Log.Warn().Err(err).Msg("waitlist promotion after cancel failed")
		}
	}
	if s.Events != nil {
		_, _ = s.Events.Emit(ctx, events.TopicBookingCanceled, booking.ID, map[string]any{
			"bookingId": uuid.UUID(booking.ID.Bytes).String(),
			"email":     booking.CustomerEmail,
		})
	}
	return booking, nil
}

func (s *Service) assemble(ctx context.Context, room db.Room, ret db.Retreat, in QuoteInput) (pricing.Summary, int, string, error) {
	return s.assembleWith(ctx, s.Promo, room, ret, in)
}

func (s *Service) assembleWith(ctx context.Context, promoSvc *promo.Service, room db.Room, ret db.Retreat, in QuoteInput) (pricing.Summary, int, string, error) {
	now := s.now()
	start := ret.StartDate.Time
	if !start.After(now) {
		return pricing.Summary{}, 0, "", common.NewAppError("BOOKING_CLOSED", "retreat has already started", http.StatusConflict, nil)
	}
	months := pricing.MonthsUntilStart(now, start)

	offer := pricing.RoomOffer{
		RegularPrice:     room.RegularPrice,
		EarlyBirdPrice:   room.EarlyBirdPrice,
		EarlyBirdEnabled: room.EarlyBirdEnabled,
		DepositPrice:     room.DepositPrice,
	}
	var promoResult *pricing.PromoValidationResult
	var promoReason string
	if code := strings.TrimSpace(in.PromoCode); code != "" && promoSvc != nil {
		result, err := promoSvc.Evaluate(ctx, code, in.Email, uuid.UUID(ret.ID.Bytes), offer, start)
		switch {
		case err == nil:
			promoResult = &result
		case isEligibilityError(err):
			promoReason = err.Error()
		default:
			return pricing.Summary{}, 0, "", err
		}
	}
	quote := pricing.Quote{
		Offer: offer,
		Billing: pricing.BillingContext{
			Country:        in.Country,
			CustomerType:   pricing.CustomerType(customerTypeFor(in.CustomerType)),
			VATIDValidated: ValidVATID(in.Country, in.VATID),
		},
		PaymentType: paymentTypeFor(in.PaymentType, months),
		Promo:       promoResult,
		Now:         now,
		Start:       start,
	}
	return pricing.Assemble(s.VAT, quote), months, promoReason, nil
}

func (s *Service) toPriceView(summary pricing.Summary, paymentType pricing.PaymentType) PriceView {
	view := PriceView{
		Currency: s.Currency,
		Subtotal: summary.Subtotal,
		Discount: DiscountView{
			Amount:               summary.Discount.Amount,
			Source:               summary.Discount.Source.String(),
			EarlyBirdAlternative: summary.Discount.EarlyBirdAlternative,
		},
		VATRateBps:  summary.VATRateBps,
		VATAmount:   summary.VATAmount,
		Total:       summary.Total,
		DueToday:    summary.DueToday,
		PaymentType: string(paymentType),
		Schedule:    make([]InstallmentView, 0, len(summary.Installments)),
	}
	for i, entry := range summary.Installments {
		view.Schedule = append(view.Schedule, InstallmentView{
			Position: i + 1,
			Percent:  entry.Percent,
			Amount:   entry.Amount,
			DueRule:  entry.DueRule,
			DueAt:    entry.DueAt,
		})
	}
	return view
}

func (s *Service) invalidateRetreat(ctx context.Context, slug string) {
	if s.Retreats != nil {
		s.Retreats.InvalidateCache(ctx, slug)
	}
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// paymentTypeFor falls back to full payment when the start date is too close
// for any future installment to be collectable.
func paymentTypeFor(raw string, monthsUntilStart int) pricing.PaymentType {
	if pricing.PaymentType(raw) == pricing.PaymentScheduled && monthsUntilStart >= 1 {
		return pricing.PaymentScheduled
	}
	return pricing.PaymentFull
}

func customerTypeFor(raw string) string {
	if pricing.CustomerType(raw) == pricing.CustomerBusiness {
		return string(pricing.CustomerBusiness)
	}
	return string(pricing.CustomerPrivate)
}

func isEligibilityError(err error) bool {
	return errors.Is(err, promo.ErrNotEligible) ||
		errors.Is(err, promo.ErrInactive) ||
		errors.Is(err, promo.ErrExpired) ||
		errors.Is(err, promo.ErrUsageLimitReached) ||
		errors.Is(err, promo.ErrPerEmailLimitReached) ||
		errors.Is(err, promo.ErrWrongRetreat)
}

var vatIDPattern = regexp.MustCompile(`^[A-Z]{2}[A-Z0-9]{2,12}$`)

// ValidVATID performs a structural check of an EU VAT identifier: the prefix
// must match the billing country and the remainder must be alphanumeric.
// Greece uses the EL prefix instead of its ISO code GR.
func ValidVATID(country, vatID string) bool {
	id := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(vatID), " ", ""))
	if !vatIDPattern.MatchString(id) {
		return false
	}
	cc := strings.ToUpper(strings.TrimSpace(country))
	prefix := id[:2]
	if cc == "GR" {
		return prefix == "EL"
	}
	return prefix == cc && pricing.IsEUCountry(cc)
}

func nullableText(v string) pgtype.Text {
	v = strings.TrimSpace(v)
	if v == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: v, Valid: true}
}

func parsePgUUID(value string) (pgtype.UUID, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return pgtype.UUID{}, err
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}, nil
}
