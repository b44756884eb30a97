package pricing_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sagewood/backend-retreats/internal/pricing"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestMonthsUntilStart(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		now   time.Time
		start time.Time
		want  int
	}{
		{"four months out", date(2026, time.January, 10), date(2026, time.May, 10), 4},
		{"one day short of a month", date(2026, time.January, 10), date(2026, time.February, 9), 0},
		{"exactly one month", date(2026, time.January, 10), date(2026, time.February, 10), 1},
		{"across year boundary", date(2025, time.November, 1), date(2026, time.February, 1), 3},
		{"start in the past", date(2026, time.June, 1), date(2026, time.January, 1), 0},
		{"same day", date(2026, time.June, 1), date(2026, time.June, 1), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, pricing.MonthsUntilStart(tc.now, tc.start))
		})
	}
}

func TestDepositPercentStepFunction(t *testing.T) {
	t.Parallel()

	for months := 0; months <= 12; months++ {
		got := pricing.DepositPercent(months)
		if months >= 2 {
			require.Equal(t, 10, got, "months=%d", months)
		} else {
			require.Equal(t, 50, got, "months=%d", months)
		}
	}
}

func TestEarlyBirdGateIsSeparateFromDepositGate(t *testing.T) {
	t.Parallel()

	now := date(2026, time.January, 1)
	// 2 months out: low deposit applies but early bird does not.
	start := date(2026, time.March, 1)
	require.Equal(t, 10, pricing.DepositPercent(pricing.MonthsUntilStart(now, start)))
	require.False(t, pricing.EarlyBirdEligible(now, start))

	// 3 months out: both gates open.
	start = date(2026, time.April, 1)
	require.True(t, pricing.EarlyBirdEligible(now, start))
}
