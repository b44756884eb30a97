package pricing_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sagewood/backend-retreats/internal/pricing"
)

func testOffer() pricing.RoomOffer {
	return pricing.RoomOffer{
		RegularPrice:     80_000,
		EarlyBirdPrice:   72_000,
		EarlyBirdEnabled: true,
		DepositPrice:     8_000,
	}
}

func TestEarlyBirdDiscount(t *testing.T) {
	t.Parallel()

	offer := testOffer()
	require.Equal(t, int64(8_000), pricing.EarlyBirdDiscount(offer, true))
	require.Equal(t, int64(0), pricing.EarlyBirdDiscount(offer, false))

	disabled := offer
	disabled.EarlyBirdEnabled = false
	require.Equal(t, int64(0), pricing.EarlyBirdDiscount(disabled, true))

	unset := offer
	unset.EarlyBirdPrice = 0
	require.Equal(t, int64(0), pricing.EarlyBirdDiscount(unset, true))

	inverted := offer
	inverted.EarlyBirdPrice = 90_000
	require.Equal(t, int64(0), pricing.EarlyBirdDiscount(inverted, true))
}

func TestResolveDiscountEarlyBirdWins(t *testing.T) {
	t.Parallel()

	d := pricing.ResolveDiscount(testOffer(), true, nil)
	require.Equal(t, int64(8_000), d.Amount)
	require.Equal(t, pricing.SourceEarlyBird, d.Source)
	require.Zero(t, d.EarlyBirdAlternative)
}

func TestResolveDiscountPromoIsAuthoritative(t *testing.T) {
	t.Parallel()

	// Server picked the promo code even though early bird exists; its decision
	// stands and the early-bird saving is surfaced as the losing alternative.
	promo := &pricing.PromoValidationResult{
		Valid:                   true,
		DiscountAmount:          10_000,
		Source:                  pricing.SourcePromoCode,
		PromoDiscountAmount:     10_000,
		EarlyBirdDiscountAmount: 8_000,
		IsEarlyBirdEligible:     true,
	}
	d := pricing.ResolveDiscount(testOffer(), true, promo)
	require.Equal(t, int64(10_000), d.Amount)
	require.Equal(t, pricing.SourcePromoCode, d.Source)
	require.Equal(t, int64(8_000), d.EarlyBirdAlternative)
}

func TestResolveDiscountPromoMayDeclareEarlyBird(t *testing.T) {
	t.Parallel()

	// The server compared both and declared early bird the winner.
	promo := &pricing.PromoValidationResult{
		Valid:               true,
		DiscountAmount:      8_000,
		Source:              pricing.SourceEarlyBird,
		PromoDiscountAmount: 5_000,
		IsEarlyBirdEligible: true,
	}
	d := pricing.ResolveDiscount(testOffer(), true, promo)
	require.Equal(t, int64(8_000), d.Amount)
	require.Equal(t, pricing.SourceEarlyBird, d.Source)
}

func TestResolveDiscountClampsToRegularPrice(t *testing.T) {
	t.Parallel()

	promo := &pricing.PromoValidationResult{Valid: true, DiscountAmount: 500_000, Source: pricing.SourcePromoCode}
	d := pricing.ResolveDiscount(testOffer(), false, promo)
	require.Equal(t, int64(80_000), d.Amount)
}

func TestResolveDiscountNone(t *testing.T) {
	t.Parallel()

	d := pricing.ResolveDiscount(testOffer(), false, nil)
	require.Zero(t, d.Amount)
	require.Equal(t, pricing.SourceNone, d.Source)

	// An invalid or zero-amount promo falls back to the early-bird rule.
	promo := &pricing.PromoValidationResult{Valid: false, DiscountAmount: 10_000, Source: pricing.SourcePromoCode}
	d = pricing.ResolveDiscount(testOffer(), true, promo)
	require.Equal(t, pricing.SourceEarlyBird, d.Source)
	require.Equal(t, int64(8_000), d.Amount)
}

func TestParseDiscountSourceRoundTrip(t *testing.T) {
	t.Parallel()

	for _, s := range []pricing.DiscountSource{pricing.SourceNone, pricing.SourceEarlyBird, pricing.SourcePromoCode} {
		parsed, err := pricing.ParseDiscountSource(s.String())
		require.NoError(t, err)
		require.Equal(t, s, parsed)
	}
	_, err := pricing.ParseDiscountSource("loyalty")
	require.Error(t, err)
}
