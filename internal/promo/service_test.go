package promo

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
)

type stubQueries struct {
	promo          db.PromoCode
	redemptions    int64
	existingBooked bool

	inserted  []db.InsertPromoRedemptionParams
	increased int
}

func (s *stubQueries) GetPromoByCode(_ context.Context, code string) (db.PromoCode, error) {
	if s.promo.Code == "" || s.promo.Code != code {
		return db.PromoCode{}, pgx.ErrNoRows
	}
	return s.promo, nil
}

func (s *stubQueries) GetPromoByCodeForUpdate(ctx context.Context, code string) (db.PromoCode, error) {
	return s.GetPromoByCode(ctx, code)
}

func (s *stubQueries) CountPromoRedemptionsByEmail(_ context.Context, _ db.CountPromoRedemptionsByEmailParams) (int64, error) {
	return s.redemptions, nil
}

func (s *stubQueries) GetPromoRedemptionByBooking(_ context.Context, _ db.GetPromoRedemptionByBookingParams) (db.PromoRedemption, error) {
	if s.existingBooked {
		return db.PromoRedemption{}, nil
	}
	return db.PromoRedemption{}, pgx.ErrNoRows
}

func (s *stubQueries) InsertPromoRedemption(_ context.Context, arg db.InsertPromoRedemptionParams) error {
	s.inserted = append(s.inserted, arg)
	return nil
}

func (s *stubQueries) IncreasePromoUsedCount(_ context.Context, _ pgtype.UUID) error {
	s.increased++
	return nil
}

func testPromo(code string, value int64) db.PromoCode {
	return db.PromoCode{
		ID:    pgtype.UUID{Bytes: uuid.New(), Valid: true},
		Code:  code,
		Kind:  db.PromoKindFixedAmount,
		Value: value,
	}
}

func testOffer() pricing.RoomOffer {
	return pricing.RoomOffer{
		RegularPrice:     80_000,
		EarlyBirdPrice:   72_000,
		EarlyBirdEnabled: true,
		DepositPrice:     8_000,
	}
}

func fixedNow() time.Time {
	return time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
}

func TestEvaluatePromoBeatsEarlyBird(t *testing.T) {
	start := fixedNow().AddDate(0, 4, 0)
	svc := &Service{Q: &stubQueries{promo: testPromo("SPRING", 10_000)}, Now: fixedNow}

	result, err := svc.Evaluate(context.Background(), "SPRING", "anna@example.com", uuid.New(), testOffer(), start)
	require.NoError(t, err)
	require.True(t, result.Valid)
	require.Equal(t, pricing.SourcePromoCode, result.Source)
	require.EqualValues(t, 10_000, result.DiscountAmount)
	require.EqualValues(t, 10_000, result.PromoDiscountAmount)
	require.EqualValues(t, 8_000, result.EarlyBirdDiscountAmount)
	require.True(t, result.IsEarlyBirdEligible)
}

func TestEvaluateMatchesCodeCaseInsensitively(t *testing.T) {
	start := fixedNow().AddDate(0, 4, 0)
	svc := &Service{Q: &stubQueries{promo: testPromo("SUMMER10", 10_000)}, Now: fixedNow}

	result, err := svc.Evaluate(context.Background(), "  summer10 ", "anna@example.com", uuid.New(), testOffer(), start)
	require.NoError(t, err)
	require.True(t, result.Valid)
	require.Equal(t, pricing.SourcePromoCode, result.Source)
}

func TestSettleMatchesCodeCaseInsensitively(t *testing.T) {
	q := &stubQueries{promo: testPromo("SUMMER10", 10_000)}
	svc := &Service{Q: q, Now: fixedNow}

	bookingID := pgtype.UUID{Bytes: uuid.New(), Valid: true}
	require.NoError(t, svc.Settle(context.Background(), "summer10", bookingID, "anna@example.com", 10_000))
	require.Len(t, q.inserted, 1)
	require.Equal(t, 1, q.increased)
}

func TestEvaluateEarlyBirdBeatsSmallPromo(t *testing.T) {
	start := fixedNow().AddDate(0, 4, 0)
	svc := &Service{Q: &stubQueries{promo: testPromo("TINY", 2_000)}, Now: fixedNow}

	result, err := svc.Evaluate(context.Background(), "TINY", "", uuid.New(), testOffer(), start)
	require.NoError(t, err)
	require.True(t, result.Valid)
	require.Equal(t, pricing.SourceEarlyBird, result.Source)
	require.EqualValues(t, 8_000, result.DiscountAmount)
	require.EqualValues(t, 2_000, result.PromoDiscountAmount)
}

func TestEvaluateUnknownCodeStillReportsEarlyBird(t *testing.T) {
	start := fixedNow().AddDate(0, 4, 0)
	svc := &Service{Q: &stubQueries{}, Now: fixedNow}

	result, err := svc.Evaluate(context.Background(), "NOPE", "", uuid.New(), testOffer(), start)
	require.ErrorIs(t, err, ErrNotEligible)
	require.False(t, result.Valid)
	require.EqualValues(t, 8_000, result.EarlyBirdDiscountAmount)
	require.True(t, result.IsEarlyBirdEligible)
}

func TestEvaluatePerEmailLimit(t *testing.T) {
	promo := testPromo("ONCE", 5_000)
	promo.PerEmailLimit = pgtype.Int4{Int32: 1, Valid: true}
	svc := &Service{Q: &stubQueries{promo: promo, redemptions: 1}, Now: fixedNow}

	_, err := svc.Evaluate(context.Background(), "ONCE", "anna@example.com", uuid.New(), testOffer(), fixedNow().AddDate(0, 4, 0))
	require.ErrorIs(t, err, ErrPerEmailLimitReached)
}

func TestEvaluateCloseToStartNoEarlyBird(t *testing.T) {
	start := fixedNow().AddDate(0, 1, 0)
	svc := &Service{Q: &stubQueries{promo: testPromo("LATE", 5_000)}, Now: fixedNow}

	result, err := svc.Evaluate(context.Background(), "LATE", "", uuid.New(), testOffer(), start)
	require.NoError(t, err)
	require.Equal(t, pricing.SourcePromoCode, result.Source)
	require.EqualValues(t, 0, result.EarlyBirdDiscountAmount)
	require.False(t, result.IsEarlyBirdEligible)
}

func TestSettleIsIdempotentPerBooking(t *testing.T) {
	q := &stubQueries{promo: testPromo("SPRING", 10_000)}
	svc := &Service{Q: q, Now: fixedNow}
	bookingID := pgtype.UUID{Bytes: uuid.New(), Valid: true}

	require.NoError(t, svc.Settle(context.Background(), "SPRING", bookingID, "Anna@Example.com", 10_000))
	require.Len(t, q.inserted, 1)
	require.Equal(t, "anna@example.com", q.inserted[0].Email)
	require.Equal(t, 1, q.increased)

	q.existingBooked = true
	require.NoError(t, svc.Settle(context.Background(), "SPRING", bookingID, "anna@example.com", 10_000))
	require.Len(t, q.inserted, 1)
	require.Equal(t, 1, q.increased)
}

func TestSettleIgnoresUnknownCodeAndZeroAmount(t *testing.T) {
	q := &stubQueries{}
	svc := &Service{Q: q, Now: fixedNow}
	bookingID := pgtype.UUID{Bytes: uuid.New(), Valid: true}

	require.NoError(t, svc.Settle(context.Background(), "GONE", bookingID, "a@b.c", 5_000))
	require.NoError(t, svc.Settle(context.Background(), "", bookingID, "a@b.c", 5_000))
	require.NoError(t, svc.Settle(context.Background(), "GONE", bookingID, "a@b.c", 0))
	require.Empty(t, q.inserted)
}
