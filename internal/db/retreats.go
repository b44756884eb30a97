package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const retreatColumns = `id, slug, title, location, start_date, end_date, published, created_at, updated_at`

func scanRetreat(row pgx.Row) (Retreat, error) {
	var r Retreat
	err := row.Scan(&r.ID, &r.Slug, &r.Title, &r.Location, &r.StartDate, &r.EndDate, &r.Published, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func (q *Queries) ListPublishedRetreats(ctx context.Context) ([]Retreat, error) {
	rows, err := q.db.Query(ctx, `SELECT `+retreatColumns+` FROM retreats WHERE published ORDER BY start_date`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Retreat
	for rows.Next() {
		r, err := scanRetreat(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (q *Queries) GetRetreatBySlug(ctx context.Context, slug string) (Retreat, error) {
	return scanRetreat(q.db.QueryRow(ctx, `SELECT `+retreatColumns+` FROM retreats WHERE slug = $1`, slug))
}

func (q *Queries) GetRetreatByID(ctx context.Context, id pgtype.UUID) (Retreat, error) {
	return scanRetreat(q.db.QueryRow(ctx, `SELECT `+retreatColumns+` FROM retreats WHERE id = $1`, id))
}

type CreateRetreatParams struct {
	Slug      string
	Title     string
	Location  string
	StartDate pgtype.Timestamptz
	EndDate   pgtype.Timestamptz
	Published bool
}

func (q *Queries) CreateRetreat(ctx context.Context, arg CreateRetreatParams) (Retreat, error) {
	return scanRetreat(q.db.QueryRow(ctx, `
		INSERT INTO retreats (slug, title, location, start_date, end_date, published)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+retreatColumns,
		arg.Slug, arg.Title, arg.Location, arg.StartDate, arg.EndDate, arg.Published))
}

type UpdateRetreatParams struct {
	ID        pgtype.UUID
	Title     string
	Location  string
	StartDate pgtype.Timestamptz
	EndDate   pgtype.Timestamptz
	Published bool
}

func (q *Queries) UpdateRetreat(ctx context.Context, arg UpdateRetreatParams) (Retreat, error) {
	return scanRetreat(q.db.QueryRow(ctx, `
		UPDATE retreats
		SET title = $2, location = $3, start_date = $4, end_date = $5, published = $6, updated_at = now()
		WHERE id = $1
		RETURNING `+retreatColumns,
		arg.ID, arg.Title, arg.Location, arg.StartDate, arg.EndDate, arg.Published))
}

const roomColumns = `id, retreat_id, name, capacity, booked_count, regular_price, early_bird_price, early_bird_enabled, deposit_price, created_at, updated_at`

func scanRoom(row pgx.Row) (Room, error) {
	var r Room
	err := row.Scan(&r.ID, &r.RetreatID, &r.Name, &r.Capacity, &r.BookedCount, &r.RegularPrice, &r.EarlyBirdPrice, &r.EarlyBirdEnabled, &r.DepositPrice, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func (q *Queries) ListRoomsByRetreat(ctx context.Context, retreatID pgtype.UUID) ([]Room, error) {
	rows, err := q.db.Query(ctx, `SELECT `+roomColumns+` FROM rooms WHERE retreat_id = $1 ORDER BY regular_price`, retreatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (q *Queries) GetRoomByID(ctx context.Context, id pgtype.UUID) (Room, error) {
	return scanRoom(q.db.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1`, id))
}

// GetRoomForUpdate locks the room row for the duration of the transaction so
// capacity checks and booked_count updates are race free.
func (q *Queries) GetRoomForUpdate(ctx context.Context, id pgtype.UUID) (Room, error) {
	return scanRoom(q.db.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1 FOR UPDATE`, id))
}

type CreateRoomParams struct {
	RetreatID        pgtype.UUID
	Name             string
	Capacity         int32
	RegularPrice     int64
	EarlyBirdPrice   int64
	EarlyBirdEnabled bool
	DepositPrice     int64
}

func (q *Queries) CreateRoom(ctx context.Context, arg CreateRoomParams) (Room, error) {
	return scanRoom(q.db.QueryRow(ctx, `
		INSERT INTO rooms (retreat_id, name, capacity, regular_price, early_bird_price, early_bird_enabled, deposit_price)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+roomColumns,
		arg.RetreatID, arg.Name, arg.Capacity, arg.RegularPrice, arg.EarlyBirdPrice, arg.EarlyBirdEnabled, arg.DepositPrice))
}

func (q *Queries) IncrementRoomBooked(ctx context.Context, id pgtype.UUID) error {
	_, err := q.db.Exec(ctx, `UPDATE rooms SET booked_count = booked_count + 1, updated_at = now() WHERE id = $1`, id)
	return err
}

func (q *Queries) DecrementRoomBooked(ctx context.Context, id pgtype.UUID) error {
	_, err := q.db.Exec(ctx, `UPDATE rooms SET booked_count = GREATEST(booked_count - 1, 0), updated_at = now() WHERE id = $1`, id)
	return err
}
