package promo

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/sagewood/backend-retreats/internal/db"
	"github.com/sagewood/backend-retreats/internal/pricing"
)

var (
	// ErrNotEligible is returned when the code cannot be applied to the booking.
	ErrNotEligible = errors.New("promo code not eligible")
	// ErrUsageLimitReached indicates the code has exhausted the global usage quota.
	ErrUsageLimitReached = errors.New("promo code usage limit reached")
	// ErrPerEmailLimitReached indicates the email has exceeded its allowance.
	ErrPerEmailLimitReached = errors.New("promo code per-email limit reached")
	// ErrInactive is returned when the code is used before its validity window.
	ErrInactive = errors.New("promo code not active")
	// ErrExpired is returned when the validity window has passed.
	ErrExpired = errors.New("promo code expired")
	// ErrWrongRetreat indicates the code is scoped to other retreats.
	ErrWrongRetreat = errors.New("promo code not valid for this retreat")
)

// Rule captures the runtime constraints of a promo code.
type Rule struct {
	Code          string
	Kind          string
	Value         int64
	PercentBps    *int32
	UsageLimit    *int32
	UsedCount     int32
	PerEmailLimit *int32
	ValidFrom     *time.Time
	ValidTo       *time.Time
	RetreatIDs    []uuid.UUID
	EmailUsed     int32
}

// Validate ensures the rule can be applied at the provided instant for the retreat.
func (r Rule) Validate(now time.Time, retreatID uuid.UUID) error {
	if r.ValidFrom != nil && now.Before(*r.ValidFrom) {
		return ErrInactive
	}
	if r.ValidTo != nil && now.After(*r.ValidTo) {
		return ErrExpired
	}
	if r.UsageLimit != nil && *r.UsageLimit >= 0 && r.UsedCount >= *r.UsageLimit {
		return ErrUsageLimitReached
	}
	if r.PerEmailLimit != nil && *r.PerEmailLimit > 0 && r.EmailUsed >= *r.PerEmailLimit {
		return ErrPerEmailLimitReached
	}
	if len(r.RetreatIDs) > 0 && !r.appliesToRetreat(retreatID) {
		return ErrWrongRetreat
	}
	return nil
}

func (r Rule) appliesToRetreat(retreatID uuid.UUID) bool {
	for _, id := range r.RetreatIDs {
		if id == retreatID {
			return true
		}
	}
	return false
}

// Compute determines the discount amount against the regular room price.
func Compute(regularPrice pricing.Money, r Rule) pricing.Money {
	if regularPrice <= 0 {
		return 0
	}
	discount := r.Value
	if strings.EqualFold(r.Kind, db.PromoKindPercent) {
		if r.PercentBps == nil || *r.PercentBps <= 0 {
			return 0
		}
		discount = (regularPrice * int64(*r.PercentBps)) / 10000
	}
	if discount > regularPrice {
		discount = regularPrice
	}
	if discount < 0 {
		return 0
	}
	return discount
}

// RuleFromModel converts the stored promo row into a Rule used for evaluation.
func RuleFromModel(p db.PromoCode) Rule {
	rule := Rule{
		Code:          p.Code,
		Kind:          p.Kind,
		Value:         p.Value,
		UsedCount:     p.UsedCount,
		PercentBps:    nullableInt32(p.PercentBps),
		UsageLimit:    nullableInt32(p.UsageLimit),
		PerEmailLimit: nullableInt32(p.PerEmailLimit),
	}
	if p.ValidFrom.Valid {
		rule.ValidFrom = &p.ValidFrom.Time
	}
	if p.ValidTo.Valid {
		rule.ValidTo = &p.ValidTo.Time
	}
	rule.RetreatIDs = toUUIDSlice(p.RetreatIds)
	return rule
}

func nullableInt32(v pgtype.Int4) *int32 {
	if v.Valid {
		val := v.Int32
		return &val
	}
	return nil
}

func toUUIDSlice(values []pgtype.UUID) []uuid.UUID {
	if len(values) == 0 {
		return nil
	}
	out := make([]uuid.UUID, 0, len(values))
	for _, v := range values {
		if v.Valid {
			out = append(out, uuid.UUID(v.Bytes))
		}
	}
	return out
}
