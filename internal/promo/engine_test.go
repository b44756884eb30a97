package promo

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/sagewood/backend-retreats/internal/db"
)

func TestComputeFixedAmountClampsToPrice(t *testing.T) {
	rule := Rule{Kind: db.PromoKindFixedAmount, Value: 12_000}
	require.EqualValues(t, 10_000, Compute(10_000, rule))
	require.EqualValues(t, 12_000, Compute(80_000, rule))
	require.EqualValues(t, 0, Compute(0, rule))
}

func TestComputePercent(t *testing.T) {
	percent := int32(1500)
	rule := Rule{Kind: db.PromoKindPercent, PercentBps: &percent}
	require.EqualValues(t, 12_000, Compute(80_000, rule))

	rule.PercentBps = nil
	require.EqualValues(t, 0, Compute(80_000, rule))
}

func TestValidateWindow(t *testing.T) {
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	future := now.Add(24 * time.Hour)
	past := now.Add(-24 * time.Hour)

	rule := Rule{ValidFrom: &future}
	require.ErrorIs(t, rule.Validate(now, uuid.New()), ErrInactive)

	rule = Rule{ValidTo: &past}
	require.ErrorIs(t, rule.Validate(now, uuid.New()), ErrExpired)

	rule = Rule{ValidFrom: &past, ValidTo: &future}
	require.NoError(t, rule.Validate(now, uuid.New()))
}

func TestValidateUsageLimits(t *testing.T) {
	now := time.Now()
	limit := int32(5)

	rule := Rule{UsageLimit: &limit, UsedCount: 5}
	require.ErrorIs(t, rule.Validate(now, uuid.New()), ErrUsageLimitReached)

	perEmail := int32(1)
	rule = Rule{PerEmailLimit: &perEmail, EmailUsed: 1}
	require.ErrorIs(t, rule.Validate(now, uuid.New()), ErrPerEmailLimitReached)
}

func TestValidateRetreatScope(t *testing.T) {
	scoped := uuid.New()
	other := uuid.New()
	rule := Rule{RetreatIDs: []uuid.UUID{scoped}}

	require.NoError(t, rule.Validate(time.Now(), scoped))
	require.ErrorIs(t, rule.Validate(time.Now(), other), ErrWrongRetreat)
}
