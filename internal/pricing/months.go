package pricing

import "time"

const (
	// EarlyBirdMonthsGate is the minimum number of whole months before the
	// retreat start for early-bird pricing to apply.
	EarlyBirdMonthsGate = 3
	// LowDepositMonthsGate is the minimum number of whole months before the
	// retreat start for the reduced 10% deposit to apply. It is a separate
	// cutoff from the early-bird gate.
	LowDepositMonthsGate = 2
)

// MonthsUntilStart returns the number of whole calendar months between now and
// the retreat start, never negative.
func MonthsUntilStart(now, start time.Time) int {
	if !start.After(now) {
		return 0
	}
	months := (start.Year()-now.Year())*12 + int(start.Month()) - int(now.Month())
	if start.Day() < now.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

// EarlyBirdEligible reports whether a booking made now qualifies for
// early-bird pricing on a retreat starting at start.
func EarlyBirdEligible(now, start time.Time) bool {
	return MonthsUntilStart(now, start) >= EarlyBirdMonthsGate
}

// DepositPercent returns the deposit percentage as a step function of the
// months remaining until the retreat start. The only possible values are
// 10 and 50.
func DepositPercent(monthsUntilStart int) int {
	if monthsUntilStart >= LowDepositMonthsGate {
		return 10
	}
	return 50
}
