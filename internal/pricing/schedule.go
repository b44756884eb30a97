package pricing

import (
	"fmt"
	"time"
)

// PaymentType is the buyer's choice between paying in full and an installment plan.
type PaymentType string

const (
	// PaymentFull charges the entire amount today.
	PaymentFull PaymentType = "full"
	// PaymentScheduled splits the amount into a deposit plus future installments.
	PaymentScheduled PaymentType = "scheduled"
)

// Due rule descriptions attached to schedule entries.
const (
	DueToday           = "due today"
	DueTwoMonthsBefore = "2 months before start"
	DueOneMonthBefore  = "1 month before start"
)

// ScheduleEntry is one dated installment of a payment plan. The first entry of
// a plan is always due today.
type ScheduleEntry struct {
	Percent int       `json:"percent"`
	Amount  Money     `json:"amount"`
	DueRule string    `json:"dueRule"`
	DueAt   time.Time `json:"dueAt"`
}

// PlanSchedule computes the dated installment plan for finalPrice.
//
// Every entry except the last is rounded individually; the last entry is the
// remainder so the amounts always sum exactly to finalPrice. Negative prices
// and unknown payment types are caller contract violations and panic rather
// than producing a wrong charge.
func PlanSchedule(finalPrice Money, paymentType PaymentType, monthsUntilStart int, now, start time.Time) []ScheduleEntry {
	if finalPrice < 0 {
		panic(fmt.Sprintf("pricing: negative final price %d", finalPrice))
	}
	switch paymentType {
	case PaymentFull:
		return []ScheduleEntry{{Percent: 100, Amount: finalPrice, DueRule: DueToday, DueAt: now}}
	case PaymentScheduled:
		if DepositPercent(monthsUntilStart) == 10 {
			return splitSchedule(finalPrice, []ScheduleEntry{
				{Percent: 10, DueRule: DueToday, DueAt: now},
				{Percent: 50, DueRule: DueTwoMonthsBefore, DueAt: start.AddDate(0, -2, 0)},
				{Percent: 40, DueRule: DueOneMonthBefore, DueAt: start.AddDate(0, -1, 0)},
			})
		}
		return splitSchedule(finalPrice, []ScheduleEntry{
			{Percent: 50, DueRule: DueToday, DueAt: now},
			{Percent: 50, DueRule: DueOneMonthBefore, DueAt: start.AddDate(0, -1, 0)},
		})
	default:
		panic(fmt.Sprintf("pricing: unknown payment type %q", paymentType))
	}
}

func splitSchedule(finalPrice Money, entries []ScheduleEntry) []ScheduleEntry {
	var allocated Money
	for i := range entries {
		if i == len(entries)-1 {
			entries[i].Amount = finalPrice - allocated
			break
		}
		entries[i].Amount = percentOf(finalPrice, entries[i].Percent)
		allocated += entries[i].Amount
	}
	return entries
}

func percentOf(amount Money, percent int) Money {
	return (amount*Money(percent) + 50) / 100
}
