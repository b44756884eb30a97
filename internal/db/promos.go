package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const promoColumns = `id, code, kind, value, percent_bps, usage_limit, used_count, per_email_limit, valid_from, valid_to, retreat_ids, created_at, updated_at`

func scanPromo(row pgx.Row) (PromoCode, error) {
	var p PromoCode
	err := row.Scan(&p.ID, &p.Code, &p.Kind, &p.Value, &p.PercentBps, &p.UsageLimit, &p.UsedCount, &p.PerEmailLimit, &p.ValidFrom, &p.ValidTo, &p.RetreatIds, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (q *Queries) GetPromoByCode(ctx context.Context, code string) (PromoCode, error) {
	return scanPromo(q.db.QueryRow(ctx, `SELECT `+promoColumns+` FROM promo_codes WHERE code = $1`, code))
}

// GetPromoByCodeForUpdate locks the promo row so usage counters settle without
// racing concurrent checkouts.
func (q *Queries) GetPromoByCodeForUpdate(ctx context.Context, code string) (PromoCode, error) {
	return scanPromo(q.db.QueryRow(ctx, `SELECT `+promoColumns+` FROM promo_codes WHERE code = $1 FOR UPDATE`, code))
}

func (q *Queries) ListPromos(ctx context.Context, limit, offset int32) ([]PromoCode, error) {
	rows, err := q.db.Query(ctx, `SELECT `+promoColumns+` FROM promo_codes ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PromoCode
	for rows.Next() {
		p, err := scanPromo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type CreatePromoParams struct {
	Code          string
	Kind          string
	Value         int64
	PercentBps    pgtype.Int4
	UsageLimit    pgtype.Int4
	PerEmailLimit pgtype.Int4
	ValidFrom     pgtype.Timestamptz
	ValidTo       pgtype.Timestamptz
	RetreatIds    []pgtype.UUID
}

func (q *Queries) CreatePromo(ctx context.Context, arg CreatePromoParams) (PromoCode, error) {
	return scanPromo(q.db.QueryRow(ctx, `
		INSERT INTO promo_codes (code, kind, value, percent_bps, usage_limit, per_email_limit, valid_from, valid_to, retreat_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+promoColumns,
		arg.Code, arg.Kind, arg.Value, arg.PercentBps, arg.UsageLimit, arg.PerEmailLimit, arg.ValidFrom, arg.ValidTo, arg.RetreatIds))
}

type UpdatePromoParams struct {
	Code          string
	Kind          string
	Value         int64
	PercentBps    pgtype.Int4
	UsageLimit    pgtype.Int4
	PerEmailLimit pgtype.Int4
	ValidFrom     pgtype.Timestamptz
	ValidTo       pgtype.Timestamptz
	RetreatIds    []pgtype.UUID
}

func (q *Queries) UpdatePromo(ctx context.Context, arg UpdatePromoParams) (PromoCode, error) {
	return scanPromo(q.db.QueryRow(ctx, `
		UPDATE promo_codes
		SET kind = $2, value = $3, percent_bps = $4, usage_limit = $5, per_email_limit = $6,
		    valid_from = $7, valid_to = $8, retreat_ids = $9, updated_at = now()
		WHERE code = $1
		RETURNING `+promoColumns,
		arg.Code, arg.Kind, arg.Value, arg.PercentBps, arg.UsageLimit, arg.PerEmailLimit, arg.ValidFrom, arg.ValidTo, arg.RetreatIds))
}

type CountPromoRedemptionsByEmailParams struct {
	PromoID pgtype.UUID
	Email   string
}

func (q *Queries) CountPromoRedemptionsByEmail(ctx context.Context, arg CountPromoRedemptionsByEmailParams) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, `SELECT count(*) FROM promo_redemptions WHERE promo_id = $1 AND email = $2`, arg.PromoID, arg.Email).Scan(&count)
	return count, err
}

type GetPromoRedemptionByBookingParams struct {
	PromoID   pgtype.UUID
	BookingID pgtype.UUID
}

func (q *Queries) GetPromoRedemptionByBooking(ctx context.Context, arg GetPromoRedemptionByBookingParams) (PromoRedemption, error) {
	var r PromoRedemption
	err := q.db.QueryRow(ctx, `
		SELECT id, promo_id, booking_id, email, amount, created_at
		FROM promo_redemptions WHERE promo_id = $1 AND booking_id = $2`,
		arg.PromoID, arg.BookingID).
		Scan(&r.ID, &r.PromoID, &r.BookingID, &r.Email, &r.Amount, &r.CreatedAt)
	return r, err
}

type InsertPromoRedemptionParams struct {
	PromoID   pgtype.UUID
	BookingID pgtype.UUID
	Email     string
	Amount    int64
}

func (q *Queries) InsertPromoRedemption(ctx context.Context, arg InsertPromoRedemptionParams) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO promo_redemptions (promo_id, booking_id, email, amount)
		VALUES ($1, $2, $3, $4)`,
		arg.PromoID, arg.BookingID, arg.Email, arg.Amount)
	return err
}

func (q *Queries) IncreasePromoUsedCount(ctx context.Context, id pgtype.UUID) error {
	_, err := q.db.Exec(ctx, `UPDATE promo_codes SET used_count = used_count + 1, updated_at = now() WHERE id = $1`, id)
	return err
}
