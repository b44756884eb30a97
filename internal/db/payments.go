package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const paymentColumns = `id, booking_id, installment_id, provider, provider_ref, amount, status, created_at, updated_at`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.BookingID, &p.InstallmentID, &p.Provider, &p.ProviderRef, &p.Amount, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

type InsertPaymentParams struct {
	BookingID     pgtype.UUID
	InstallmentID pgtype.UUID
	Provider      string
	ProviderRef   string
	Amount        int64
	Status        string
}

func (q *Queries) InsertPayment(ctx context.Context, arg InsertPaymentParams) (Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, `
		INSERT INTO payments (booking_id, installment_id, provider, provider_ref, amount, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+paymentColumns,
		arg.BookingID, arg.InstallmentID, arg.Provider, arg.ProviderRef, arg.Amount, arg.Status))
}

func (q *Queries) GetPaymentByProviderRef(ctx context.Context, providerRef string) (Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE provider_ref = $1`, providerRef))
}

func (q *Queries) GetPaymentByID(ctx context.Context, id pgtype.UUID) (Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
}

func (q *Queries) ListPaymentsByBooking(ctx context.Context, bookingID pgtype.UUID) ([]Payment, error) {
	rows, err := q.db.Query(ctx, `SELECT `+paymentColumns+` FROM payments WHERE booking_id = $1 ORDER BY created_at`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type UpdatePaymentStatusParams struct {
	ID     pgtype.UUID
	Status string
}

func (q *Queries) UpdatePaymentStatus(ctx context.Context, arg UpdatePaymentStatusParams) error {
	_, err := q.db.Exec(ctx, `UPDATE payments SET status = $2, updated_at = now() WHERE id = $1`, arg.ID, arg.Status)
	return err
}
