package booking

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	"github.com/sagewood/backend-retreats/internal/db"
	"github.com/sagewood/backend-retreats/internal/pricing"
	"github.com/sagewood/backend-retreats/internal/promo"
)

type promoStub struct {
	promo db.PromoCode
}

func (s *promoStub) GetPromoByCode(_ context.Context, code string) (db.PromoCode, error) {
	if s.promo.Code != code {
		return db.PromoCode{}, pgx.ErrNoRows
	}
	return s.promo, nil
}

func (s *promoStub) GetPromoByCodeForUpdate(ctx context.Context, code string) (db.PromoCode, error) {
	return s.GetPromoByCode(ctx, code)
}

func (s *promoStub) CountPromoRedemptionsByEmail(_ context.Context, _ db.CountPromoRedemptionsByEmailParams) (int64, error) {
	return 0, nil
}

func (s *promoStub) GetPromoRedemptionByBooking(_ context.Context, _ db.GetPromoRedemptionByBookingParams) (db.PromoRedemption, error) {
	return db.PromoRedemption{}, pgx.ErrNoRows
}

func (s *promoStub) InsertPromoRedemption(_ context.Context, _ db.InsertPromoRedemptionParams) error {
	return nil
}

func (s *promoStub) IncreasePromoUsedCount(_ context.Context, _ pgtype.UUID) error { return nil }

func fixedNow() time.Time {
	return time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
}

func testVATConfig() pricing.VATConfig {
	return pricing.VATConfig{
		HomeCountry: "DE",
		RateBps:     map[string]int{"DE": 1900, "FR": 2000, "AT": 2000},
	}
}

func testRoom() db.Room {
	return db.Room{
		ID:               pgtype.UUID{Bytes: uuid.New(), Valid: true},
		RetreatID:        pgtype.UUID{Bytes: uuid.New(), Valid: true},
		Name:             "Double room",
		Capacity:         8,
		RegularPrice:     80_000,
		EarlyBirdPrice:   72_000,
		EarlyBirdEnabled: true,
		DepositPrice:     8_000,
	}
}

func testRetreat(room db.Room, start time.Time) db.Retreat {
	return db.Retreat{
		ID:        room.RetreatID,
		Slug:      "alps-autumn",
		Title:     "Autumn in the Alps",
		StartDate: pgtype.Timestamptz{Time: start, Valid: true},
		EndDate:   pgtype.Timestamptz{Time: start.AddDate(0, 0, 7), Valid: true},
		Published: true,
	}
}

func testService() *Service {
	return &Service{VAT: testVATConfig(), Currency: "EUR", Now: fixedNow}
}

func TestAssembleEarlyBirdScheduledFourMonthsOut(t *testing.T) {
	svc := testService()
	room := testRoom()
	ret := testRetreat(room, fixedNow().AddDate(0, 4, 0))

	summary, months, reason, err := svc.assembleWith(context.Background(), nil, room, ret, QuoteInput{
		Country:     "DE",
		PaymentType: "scheduled",
	})
	require.NoError(t, err)
	require.Equal(t, 4, months)
	require.Empty(t, reason)
	require.Equal(t, pricing.SourceEarlyBird, summary.Discount.Source)
	require.EqualValues(t, 8_000, summary.Discount.Amount)
	require.Len(t, summary.Installments, 3)
	require.Equal(t, 10, summary.Installments[0].Percent)

	var sum int64
	for _, entry := range summary.Installments {
		sum += entry.Amount
	}
	require.Equal(t, summary.Total, sum)
}

func TestAssemblePromoWinsAndSurfacesAlternative(t *testing.T) {
	svc := testService()
	room := testRoom()
	ret := testRetreat(room, fixedNow().AddDate(0, 4, 0))
	promoSvc := &promo.Service{
		Q: &promoStub{promo: db.PromoCode{
			ID:    pgtype.UUID{Bytes: uuid.New(), Valid: true},
			Code:  "SPRING",
			Kind:  db.PromoKindFixedAmount,
			Value: 10_000,
		}},
		Now: fixedNow,
	}

	summary, _, reason, err := svc.assembleWith(context.Background(), promoSvc, room, ret, QuoteInput{
		Country:   "DE",
		PromoCode: "SPRING",
	})
	require.NoError(t, err)
	require.Empty(t, reason)
	require.Equal(t, pricing.SourcePromoCode, summary.Discount.Source)
	require.EqualValues(t, 10_000, summary.Discount.Amount)
	require.EqualValues(t, 8_000, summary.Discount.EarlyBirdAlternative)
}

func TestAssembleUnknownPromoKeepsEarlyBirdAndReportsReason(t *testing.T) {
	svc := testService()
	room := testRoom()
	ret := testRetreat(room, fixedNow().AddDate(0, 4, 0))
	promoSvc := &promo.Service{Q: &promoStub{}, Now: fixedNow}

	summary, _, reason, err := svc.assembleWith(context.Background(), promoSvc, room, ret, QuoteInput{
		Country:   "DE",
		PromoCode: "NOPE",
	})
	require.NoError(t, err)
	require.NotEmpty(t, reason)
	require.Equal(t, pricing.SourceEarlyBird, summary.Discount.Source)
}

func TestAssembleReverseChargeForFrenchBusiness(t *testing.T) {
	svc := testService()
	room := testRoom()
	ret := testRetreat(room, fixedNow().AddDate(0, 4, 0))

	summary, _, _, err := svc.assembleWith(context.Background(), nil, room, ret, QuoteInput{
		Country:      "FR",
		CustomerType: "business",
		VATID:        "FR12345678901",
	})
	require.NoError(t, err)
	require.Equal(t, 0, summary.VATRateBps)
	require.EqualValues(t, 0, summary.VATAmount)

	// A German business buying at home pays domestic VAT.
	summary, _, _, err = svc.assembleWith(context.Background(), nil, room, ret, QuoteInput{
		Country:      "DE",
		CustomerType: "business",
		VATID:        "DE123456789",
	})
	require.NoError(t, err)
	require.Equal(t, 1900, summary.VATRateBps)
}

func TestAssembleRejectsStartedRetreat(t *testing.T) {
	svc := testService()
	room := testRoom()
	ret := testRetreat(room, fixedNow().AddDate(0, 0, -1))

	_, _, _, err := svc.assembleWith(context.Background(), nil, room, ret, QuoteInput{Country: "DE"})
	require.Error(t, err)
}

func TestPaymentTypeFallsBackToFull(t *testing.T) {
	require.Equal(t, pricing.PaymentScheduled, paymentTypeFor("scheduled", 3))
	require.Equal(t, pricing.PaymentScheduled, paymentTypeFor("scheduled", 1))
	require.Equal(t, pricing.PaymentFull, paymentTypeFor("scheduled", 0))
	require.Equal(t, pricing.PaymentFull, paymentTypeFor("full", 6))
	require.Equal(t, pricing.PaymentFull, paymentTypeFor("", 6))
}

func TestValidVATID(t *testing.T) {
	require.True(t, ValidVATID("DE", "DE123456789"))
	require.True(t, ValidVATID("FR", "fr 12 345 678 901"))
	require.True(t, ValidVATID("GR", "EL123456789"))
	require.False(t, ValidVATID("DE", "FR12345678901"))
	require.False(t, ValidVATID("DE", ""))
	require.False(t, ValidVATID("US", "US123456789"))
	require.False(t, ValidVATID("DE", "DE"))
}
