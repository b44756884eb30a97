package pricing

import "fmt"

// DiscountSource identifies which rule produced an applied discount.
type DiscountSource uint8

const (
	// SourceNone means no discount applies.
	SourceNone DiscountSource = iota
	// SourceEarlyBird marks a time-gated early-bird room discount.
	SourceEarlyBird
	// SourcePromoCode marks a server-validated promo code discount.
	SourcePromoCode
)

// String implements fmt.Stringer using the wire names shared with the API.
func (s DiscountSource) String() string {
	switch s {
	case SourceNone:
		return "none"
	case SourceEarlyBird:
		return "early_bird"
	case SourcePromoCode:
		return "promo_code"
	default:
		panic(fmt.Sprintf("pricing: unknown discount source %d", uint8(s)))
	}
}

// ParseDiscountSource converts a wire name back into a DiscountSource.
func ParseDiscountSource(v string) (DiscountSource, error) {
	switch v {
	case "", "none":
		return SourceNone, nil
	case "early_bird":
		return SourceEarlyBird, nil
	case "promo_code":
		return SourcePromoCode, nil
	default:
		return SourceNone, fmt.Errorf("pricing: unknown discount source %q", v)
	}
}

// RoomOffer is an immutable price snapshot of a room, fetched per booking attempt.
type RoomOffer struct {
	RegularPrice     Money
	EarlyBirdPrice   Money
	EarlyBirdEnabled bool
	DepositPrice     Money
}

// PromoValidationResult is the server-side decision for an applied promo code.
// The validation endpoint has already compared the code against the early-bird
// saving and picked the winner; consumers trust Source and DiscountAmount
// verbatim instead of recomputing.
type PromoValidationResult struct {
	Valid                   bool
	DiscountAmount          Money
	Source                  DiscountSource
	PromoDiscountAmount     Money
	EarlyBirdDiscountAmount Money
	IsEarlyBirdEligible     bool
}

// Discount is the single applied discount for a booking.
type Discount struct {
	Amount Money
	Source DiscountSource
	// EarlyBirdAlternative carries the early-bird saving that lost to a promo
	// code so the UI can render it as the crossed-out alternative.
	EarlyBirdAlternative Money
}

// EarlyBirdDiscount returns the early-bird saving for the offer, or zero when
// the room has no usable early-bird price or the booking is not eligible.
func EarlyBirdDiscount(offer RoomOffer, eligible bool) Money {
	if !eligible || !offer.EarlyBirdEnabled {
		return 0
	}
	if offer.EarlyBirdPrice <= 0 || offer.EarlyBirdPrice >= offer.RegularPrice {
		return 0
	}
	return offer.RegularPrice - offer.EarlyBirdPrice
}

// ResolveDiscount determines the single best discount and its source.
//
// A valid promo validation result is authoritative even when the early-bird
// saving would have been larger. The returned amount never exceeds the
// regular price, and Source is SourceNone exactly when the amount is zero.
func ResolveDiscount(offer RoomOffer, earlyBirdEligible bool, promo *PromoValidationResult) Discount {
	eb := EarlyBirdDiscount(offer, earlyBirdEligible)
	if promo != nil && promo.Valid && promo.DiscountAmount > 0 {
		amount := promo.DiscountAmount
		if amount > offer.RegularPrice {
			amount = offer.RegularPrice
		}
		d := Discount{Amount: amount, Source: promo.Source}
		if promo.Source == SourcePromoCode {
			d.EarlyBirdAlternative = eb
		}
		return d
	}
	if eb > 0 {
		return Discount{Amount: eb, Source: SourceEarlyBird}
	}
	return Discount{}
}
