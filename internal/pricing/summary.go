package pricing

import (
	"fmt"
	"time"
)

// Quote carries the pre-validated inputs for one price computation. Callers
// are responsible for fetching the offer and validating the promo server-side
// before assembling.
type Quote struct {
	Offer       RoomOffer
	Billing     BillingContext
	PaymentType PaymentType
	Promo       *PromoValidationResult
	Now         time.Time
	Start       time.Time
}

// Summary is the full price breakdown consumed identically by the booking UI
// and the checkout path.
type Summary struct {
	Subtotal     Money           `json:"subtotal"`
	Discount     Discount        `json:"discount"`
	VATRateBps   int             `json:"vatRateBps"`
	VATAmount    Money           `json:"vatAmount"`
	Total        Money           `json:"total"`
	DueToday     Money           `json:"dueToday"`
	Installments []ScheduleEntry `json:"installments"`
}

// FutureInstallments returns the entries due after today.
func (s Summary) FutureInstallments() []ScheduleEntry {
	if len(s.Installments) <= 1 {
		return nil
	}
	return s.Installments[1:]
}

// Assemble composes the VAT, discount, and schedule rules into a price
// breakdown. It is a pure function: the quote endpoint and the booking
// creation path call it with the same inputs so the displayed price always
// equals the charged price.
//
// Out-of-domain input (negative prices, unknown payment type or discount
// source) panics; callers validate requests before assembling.
func Assemble(cfg VATConfig, q Quote) Summary {
	if q.Offer.RegularPrice < 0 {
		panic(fmt.Sprintf("pricing: negative room price %d", q.Offer.RegularPrice))
	}
	months := MonthsUntilStart(q.Now, q.Start)
	discount := ResolveDiscount(q.Offer, months >= EarlyBirdMonthsGate, q.Promo)

	// Exhaustive by construction: a new discount source must be handled here.
	switch discount.Source {
	case SourceNone, SourceEarlyBird, SourcePromoCode:
	default:
		panic(fmt.Sprintf("pricing: unhandled discount source %d", uint8(discount.Source)))
	}

	taxable := q.Offer.RegularPrice - discount.Amount
	if taxable < 0 {
		taxable = 0
	}
	rate := ResolveVATRate(cfg, q.Billing)
	// Half-up in minor units, like every other rounding in this package.
	vat := (taxable*Money(rate) + 5000) / 10000
	total := taxable + vat

	entries := PlanSchedule(total, q.PaymentType, months, q.Now, q.Start)
	return Summary{
		Subtotal:     q.Offer.RegularPrice,
		Discount:     discount,
		VATRateBps:   rate,
		VATAmount:    vat,
		Total:        total,
		DueToday:     entries[0].Amount,
		Installments: entries,
	}
}
