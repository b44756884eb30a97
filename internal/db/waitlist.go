package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const waitlistColumns = `id, retreat_id, room_id, email, position, status, notified_at, notify_expires_at, created_at`

func scanWaitlistEntry(row pgx.Row) (WaitlistEntry, error) {
	var w WaitlistEntry
	err := row.Scan(&w.ID, &w.RetreatID, &w.RoomID, &w.Email, &w.Position, &w.Status, &w.NotifiedAt, &w.NotifyExpireAt, &w.CreatedAt)
	return w, err
}

// NextWaitlistPosition returns one past the highest position issued for the room.
func (q *Queries) NextWaitlistPosition(ctx context.Context, roomID pgtype.UUID) (int32, error) {
	var pos int32
	err := q.db.QueryRow(ctx, `SELECT COALESCE(MAX(position), 0) + 1 FROM waitlist_entries WHERE room_id = $1`, roomID).Scan(&pos)
	return pos, err
}

type InsertWaitlistEntryParams struct {
	RetreatID pgtype.UUID
	RoomID    pgtype.UUID
	Email     string
	Position  int32
}

func (q *Queries) InsertWaitlistEntry(ctx context.Context, arg InsertWaitlistEntryParams) (WaitlistEntry, error) {
	return scanWaitlistEntry(q.db.QueryRow(ctx, `
		INSERT INTO waitlist_entries (retreat_id, room_id, email, position, status)
		VALUES ($1, $2, $3, $4, 'WAITING')
		RETURNING `+waitlistColumns,
		arg.RetreatID, arg.RoomID, arg.Email, arg.Position))
}

// GetNextWaitingEntry locks and returns the lowest-position WAITING entry for the room.
func (q *Queries) GetNextWaitingEntry(ctx context.Context, roomID pgtype.UUID) (WaitlistEntry, error) {
	return scanWaitlistEntry(q.db.QueryRow(ctx, `
		SELECT `+waitlistColumns+` FROM waitlist_entries
		WHERE room_id = $1 AND status = 'WAITING'
		ORDER BY position
		LIMIT 1
		FOR UPDATE SKIP LOCKED`, roomID))
}

type MarkWaitlistNotifiedParams struct {
	ID        pgtype.UUID
	ExpiresAt pgtype.Timestamptz
}

func (q *Queries) MarkWaitlistNotified(ctx context.Context, arg MarkWaitlistNotifiedParams) error {
	_, err := q.db.Exec(ctx, `
		UPDATE waitlist_entries
		SET status = 'NOTIFIED', notified_at = now(), notify_expires_at = $2
		WHERE id = $1`, arg.ID, arg.ExpiresAt)
	return err
}

type MarkWaitlistConvertedParams struct {
	RoomID pgtype.UUID
	Email  string
}

// MarkWaitlistConverted closes the NOTIFIED entry for the email that just
// booked the room, so the expiry sweep never lapses a claimed spot. Returns
// the number of entries converted (0 when the booker was not on the list).
func (q *Queries) MarkWaitlistConverted(ctx context.Context, arg MarkWaitlistConvertedParams) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE waitlist_entries
		SET status = 'CONVERTED'
		WHERE room_id = $1 AND email = $2 AND status = 'NOTIFIED'`,
		arg.RoomID, arg.Email)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListExpiredNotifications returns NOTIFIED entries whose reservation window has lapsed.
func (q *Queries) ListExpiredNotifications(ctx context.Context, now pgtype.Timestamptz) ([]WaitlistEntry, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+waitlistColumns+` FROM waitlist_entries
		WHERE status = 'NOTIFIED' AND notify_expires_at < $1
		ORDER BY notify_expires_at`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []WaitlistEntry
	for rows.Next() {
		w, err := scanWaitlistEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

type UpdateWaitlistStatusParams struct {
	ID     pgtype.UUID
	Status string
}

func (q *Queries) UpdateWaitlistStatus(ctx context.Context, arg UpdateWaitlistStatusParams) error {
	_, err := q.db.Exec(ctx, `UPDATE waitlist_entries SET status = $2 WHERE id = $1`, arg.ID, arg.Status)
	return err
}

func (q *Queries) ListWaitlistByRetreat(ctx context.Context, retreatID pgtype.UUID) ([]WaitlistEntry, error) {
	rows, err := q.db.Query(ctx, `SELECT `+waitlistColumns+` FROM waitlist_entries WHERE retreat_id = $1 ORDER BY room_id, position`, retreatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []WaitlistEntry
	for rows.Next() {
		w, err := scanWaitlistEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
