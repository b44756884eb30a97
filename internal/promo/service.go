package promo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/sagewood/backend-retreats/internal/db"
	"github.com/sagewood/backend-retreats/internal/pricing"
)

// Querier captures the database methods required by the promo service.
type Querier interface {
	GetPromoByCode(ctx context.Context, code string) (db.PromoCode, error)
	GetPromoByCodeForUpdate(ctx context.Context, code string) (db.PromoCode, error)
	CountPromoRedemptionsByEmail(ctx context.Context, arg db.CountPromoRedemptionsByEmailParams) (int64, error)
	GetPromoRedemptionByBooking(ctx context.Context, arg db.GetPromoRedemptionByBookingParams) (db.PromoRedemption, error)
	InsertPromoRedemption(ctx context.Context, arg db.InsertPromoRedemptionParams) error
	IncreasePromoUsedCount(ctx context.Context, id pgtype.UUID) error
}

// Service evaluates promo codes against bookings and settles redemptions.
type Service struct {
	Q   Querier
	Now func() time.Time
}

// Evaluate decides whether the code applies to a booking of the given room and
// compares the promo saving against the early-bird saving. The returned result
// always carries both amounts so callers can render the losing alternative.
//
// A valid promo wins ties; the booker typed the code on purpose.
func (s *Service) Evaluate(ctx context.Context, code, email string, retreatID uuid.UUID, offer pricing.RoomOffer, start time.Time) (pricing.PromoValidationResult, error) {
	if s == nil || s.Q == nil {
		return pricing.PromoValidationResult{}, errors.New("promo service not configured")
	}
	now := s.now()
	eligible := pricing.EarlyBirdEligible(now, start)
	result := pricing.PromoValidationResult{
		Source:                  pricing.SourceNone,
		EarlyBirdDiscountAmount: pricing.EarlyBirdDiscount(offer, eligible),
		IsEarlyBirdEligible:     eligible,
	}

	// Codes are stored upper-cased; match whatever casing the customer typed.
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	if trimmed == "" {
		return result, fmt.Errorf("code is required: %w", ErrNotEligible)
	}
	row, err := s.Q.GetPromoByCode(ctx, trimmed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return result, ErrNotEligible
		}
		return result, err
	}
	rule := RuleFromModel(row)
	if email = strings.TrimSpace(strings.ToLower(email)); email != "" && rule.PerEmailLimit != nil && *rule.PerEmailLimit > 0 {
		used, err := s.Q.CountPromoRedemptionsByEmail(ctx, db.CountPromoRedemptionsByEmailParams{PromoID: row.ID, Email: email})
		if err != nil {
			return result, err
		}
		rule.EmailUsed = int32(used)
	}
	if err := rule.Validate(now, retreatID); err != nil {
		return result, err
	}

	promoAmount := Compute(offer.RegularPrice, rule)
	if promoAmount <= 0 {
		return result, ErrNotEligible
	}

	result.Valid = true
	result.PromoDiscountAmount = promoAmount
	if promoAmount >= result.EarlyBirdDiscountAmount {
		result.Source = pricing.SourcePromoCode
		result.DiscountAmount = promoAmount
	} else {
		result.Source = pricing.SourceEarlyBird
		result.DiscountAmount = result.EarlyBirdDiscountAmount
	}
	return result, nil
}

// Settle records a redemption at payment time, ensuring idempotency per
// booking. It locks the promo row so the usage counter is settled exactly once
// even under concurrent webhook deliveries.
func (s *Service) Settle(ctx context.Context, code string, bookingID pgtype.UUID, email string, amount pricing.Money) error {
	if s == nil || s.Q == nil {
		return errors.New("promo service not configured")
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" || !bookingID.Valid || amount <= 0 {
		return nil
	}
	row, err := s.Q.GetPromoByCodeForUpdate(ctx, code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	}
	_, err = s.Q.GetPromoRedemptionByBooking(ctx, db.GetPromoRedemptionByBookingParams{PromoID: row.ID, BookingID: bookingID})
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	if err := s.Q.InsertPromoRedemption(ctx, db.InsertPromoRedemptionParams{
		PromoID:   row.ID,
		BookingID: bookingID,
		Email:     strings.TrimSpace(strings.ToLower(email)),
		Amount:    amount,
	}); err != nil {
		return err
	}
	return s.Q.IncreasePromoUsedCount(ctx, row.ID)
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
