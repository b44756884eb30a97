package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const bookingColumns = `id, retreat_id, room_id, status, customer_name, customer_email, billing_country, customer_type, vat_id, vat_id_validated, payment_type, currency, pricing_subtotal, pricing_discount, discount_source, pricing_vat, pricing_total, due_today, promo_code, created_at, updated_at`

func scanBooking(row pgx.Row) (Booking, error) {
	var b Booking
	err := row.Scan(&b.ID, &b.RetreatID, &b.RoomID, &b.Status, &b.CustomerName, &b.CustomerEmail,
		&b.BillingCountry, &b.CustomerType, &b.VatID, &b.VatIDValidated, &b.PaymentType, &b.Currency,
		&b.PricingSubtotal, &b.PricingDiscount, &b.DiscountSource, &b.PricingVat, &b.PricingTotal,
		&b.DueToday, &b.PromoCode, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

type CreateBookingParams struct {
	RetreatID       pgtype.UUID
	RoomID          pgtype.UUID
	Status          string
	CustomerName    string
	CustomerEmail   string
	BillingCountry  string
	CustomerType    string
	VatID           pgtype.Text
	VatIDValidated  bool
	PaymentType     string
	Currency        string
	PricingSubtotal int64
	PricingDiscount int64
	DiscountSource  string
	PricingVat      int64
	PricingTotal    int64
	DueToday        int64
	PromoCode       pgtype.Text
}

func (q *Queries) CreateBooking(ctx context.Context, arg CreateBookingParams) (Booking, error) {
	return scanBooking(q.db.QueryRow(ctx, `
		INSERT INTO bookings (retreat_id, room_id, status, customer_name, customer_email,
			billing_country, customer_type, vat_id, vat_id_validated, payment_type, currency,
			pricing_subtotal, pricing_discount, discount_source, pricing_vat, pricing_total,
			due_today, promo_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING `+bookingColumns,
		arg.RetreatID, arg.RoomID, arg.Status, arg.CustomerName, arg.CustomerEmail,
		arg.BillingCountry, arg.CustomerType, arg.VatID, arg.VatIDValidated, arg.PaymentType,
		arg.Currency, arg.PricingSubtotal, arg.PricingDiscount, arg.DiscountSource,
		arg.PricingVat, arg.PricingTotal, arg.DueToday, arg.PromoCode))
}

func (q *Queries) GetBookingByID(ctx context.Context, id pgtype.UUID) (Booking, error) {
	return scanBooking(q.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
}

func (q *Queries) ListBookings(ctx context.Context, limit, offset int32) ([]Booking, error) {
	rows, err := q.db.Query(ctx, `SELECT `+bookingColumns+` FROM bookings ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

type UpdateBookingStatusParams struct {
	ID     pgtype.UUID
	Status string
}

func (q *Queries) UpdateBookingStatus(ctx context.Context, arg UpdateBookingStatusParams) (Booking, error) {
	return scanBooking(q.db.QueryRow(ctx, `
		UPDATE bookings SET status = $2, updated_at = now() WHERE id = $1
		RETURNING `+bookingColumns, arg.ID, arg.Status))
}

const installmentColumns = `id, booking_id, position, percent, amount, due_rule, due_at, status, paid_at`

func scanInstallment(row pgx.Row) (BookingInstallment, error) {
	var i BookingInstallment
	err := row.Scan(&i.ID, &i.BookingID, &i.Position, &i.Percent, &i.Amount, &i.DueRule, &i.DueAt, &i.Status, &i.PaidAt)
	return i, err
}

type InsertBookingInstallmentParams struct {
	BookingID pgtype.UUID
	Position  int32
	Percent   int32
	Amount    int64
	DueRule   string
	DueAt     pgtype.Timestamptz
}

func (q *Queries) InsertBookingInstallment(ctx context.Context, arg InsertBookingInstallmentParams) (BookingInstallment, error) {
	return scanInstallment(q.db.QueryRow(ctx, `
		INSERT INTO booking_installments (booking_id, position, percent, amount, due_rule, due_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+installmentColumns,
		arg.BookingID, arg.Position, arg.Percent, arg.Amount, arg.DueRule, arg.DueAt))
}

func (q *Queries) ListInstallmentsByBooking(ctx context.Context, bookingID pgtype.UUID) ([]BookingInstallment, error) {
	rows, err := q.db.Query(ctx, `SELECT `+installmentColumns+` FROM booking_installments WHERE booking_id = $1 ORDER BY position`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BookingInstallment
	for rows.Next() {
		i, err := scanInstallment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

func (q *Queries) MarkInstallmentPaid(ctx context.Context, id pgtype.UUID) error {
	_, err := q.db.Exec(ctx, `UPDATE booking_installments SET status = 'PAID', paid_at = now() WHERE id = $1`, id)
	return err
}

func (q *Queries) VoidInstallmentsByBooking(ctx context.Context, bookingID pgtype.UUID) error {
	_, err := q.db.Exec(ctx, `UPDATE booking_installments SET status = 'VOIDED' WHERE booking_id = $1 AND status = 'PENDING'`, bookingID)
	return err
}

func (q *Queries) CountPendingInstallments(ctx context.Context, bookingID pgtype.UUID) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, `SELECT count(*) FROM booking_installments WHERE booking_id = $1 AND status = 'PENDING'`, bookingID).Scan(&count)
	return count, err
}
