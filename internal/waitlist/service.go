package waitlist

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"github.com/sagewood/backend-retreats/internal/common"
	"github.com/sagewood/backend-retreats/internal/db"
	"github.com/sagewood/backend-retreats/internal/events"
	"github.com/sagewood/backend-retreats/internal/obs"
)

// Querier captures the database methods required by the waitlist service.
type Querier interface {
	GetRoomByID(ctx context.Context, id pgtype.UUID) (db.Room, error)
	NextWaitlistPosition(ctx context.Context, roomID pgtype.UUID) (int32, error)
	InsertWaitlistEntry(ctx context.Context, arg db.InsertWaitlistEntryParams) (db.WaitlistEntry, error)
	GetNextWaitingEntry(ctx context.Context, roomID pgtype.UUID) (db.WaitlistEntry, error)
	MarkWaitlistNotified(ctx context.Context, arg db.MarkWaitlistNotifiedParams) error
	ListExpiredNotifications(ctx context.Context, now pgtype.Timestamptz) ([]db.WaitlistEntry, error)
	UpdateWaitlistStatus(ctx context.Context, arg db.UpdateWaitlistStatusParams) error
	ListWaitlistByRetreat(ctx context.Context, retreatID pgtype.UUID) ([]db.WaitlistEntry, error)
}

// Service manages the per-room waitlist queue.
type Service struct {
	Q         Querier
	Events    *events.Bus
	NotifyTTL time.Duration
	Now       func() time.Time
	Log       zerolog.Logger
}

// Entry is the wire shape of a waitlist entry.
type Entry struct {
	ID       string `json:"id"`
	RoomID   string `json:"roomId"`
	Email    string `json:"email"`
	Position int32  `json:"position"`
	Status   string `json:"status"`
}

// Join appends the email to the room's queue. Positions are issued in join
// order and never reshuffled; a duplicate join returns the existing spot as a
// conflict.
func (s *Service) Join(ctx context.Context, roomID uuid.UUID, email string) (Entry, error) {
	if s == nil || s.Q == nil {
		return Entry{}, errors.New("waitlist service not configured")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return Entry{}, common.NewAppError("BAD_REQUEST", "email is required", http.StatusBadRequest, nil)
	}
	id := pgtype.UUID{Bytes: roomID, Valid: true}
	room, err := s.Q.GetRoomByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, common.NewAppError("NOT_FOUND", "room not found", http.StatusNotFound, err)
		}
		return Entry{}, err
	}
	if room.BookedCount < room.Capacity {
		return Entry{}, common.NewAppError("NOT_FULL", "room still has availability", http.StatusConflict, nil)
	}
	position, err := s.Q.NextWaitlistPosition(ctx, id)
	if err != nil {
		return Entry{}, err
	}
	entry, err := s.Q.InsertWaitlistEntry(ctx, db.InsertWaitlistEntryParams{
		RetreatID: room.RetreatID,
		RoomID:    room.ID,
		Email:     email,
		Position:  position,
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Entry{}, common.NewAppError("ALREADY_WAITING", "email is already on the waitlist", http.StatusConflict, err)
		}
		return Entry{}, err
	}
	if obs.WaitlistEventsTotal != nil {
		obs.WaitlistEventsTotal.WithLabelValues("joined").Inc()
	}
	return toEntry(entry), nil
}

// PromoteNext notifies the head of the queue that a spot opened up and starts
// its reservation window. It is a no-op when nobody is waiting or when the
// room has no free spot to hand out.
func (s *Service) PromoteNext(ctx context.Context, roomID pgtype.UUID) error {
	if s == nil || s.Q == nil {
		return errors.New("waitlist service not configured")
	}
	room, err := s.Q.GetRoomByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room.BookedCount >= room.Capacity {
		s.Log.Debug().Str("room_id", uuid.UUID(roomID.Bytes).String()).Msg("waitlist promotion skipped, room full")
		return nil
	}
	entry, err := s.Q.GetNextWaitingEntry(ctx, roomID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	}
	expires := s.now().Add(s.notifyTTL())
	if err := s.Q.MarkWaitlistNotified(ctx, db.MarkWaitlistNotifiedParams{
		ID:        entry.ID,
		ExpiresAt: pgtype.Timestamptz{Time: expires, Valid: true},
	}); err != nil {
		return err
	}
	if s.Events != nil {
		_, _ = s.Events.Emit(ctx, events.TopicWaitlistNotified, entry.ID, map[string]any{
			"roomId":    uuid.UUID(entry.RoomID.Bytes).String(),
			"email":     entry.Email,
			"expiresAt": expires,
		})
	}
	if obs.WaitlistEventsTotal != nil {
		obs.WaitlistEventsTotal.WithLabelValues("notified").Inc()
	}
	s.Log.Info().Str("email", entry.Email).Int32("position", entry.Position).Msg("waitlist entry notified")
	return nil
}

// ExpireNotifications lapses reservation windows that were never used and
// promotes the next person in each affected queue. Called periodically by the
// worker.
func (s *Service) ExpireNotifications(ctx context.Context) (int, error) {
	if s == nil || s.Q == nil {
		return 0, errors.New("waitlist service not configured")
	}
	expired, err := s.Q.ListExpiredNotifications(ctx, pgtype.Timestamptz{Time: s.now(), Valid: true})
	if err != nil {
		return 0, err
	}
	processed := 0
	for _, entry := range expired {
		if err := s.Q.UpdateWaitlistStatus(ctx, db.UpdateWaitlistStatusParams{ID: entry.ID, Status: db.WaitlistStatusExpired}); err != nil {
			s.Log.Error().Err(err).Str("entry_id", uuid.UUID(entry.ID.Bytes).String()).Msg("waitlist expiry failed")
			continue
		}
		processed++
		if obs.WaitlistEventsTotal != nil {
			obs.WaitlistEventsTotal.WithLabelValues("expired").Inc()
		}
		if s.Events != nil {
			_, _ = s.Events.Emit(ctx, events.TopicWaitlistExpired, entry.ID, map[string]any{
				"roomId": uuid.UUID(entry.RoomID.Bytes).String(),
				"email":  entry.Email,
			})
		}
		// The freed window passes to the next person in line.
		if err := s.PromoteNext(ctx, entry.RoomID); err != nil {
			s.Log.Error().Err(err).Msg("waitlist promotion after expiry failed")
		}
	}
	return processed, nil
}

// ListByRetreat returns all waitlist entries for an admin view.
func (s *Service) ListByRetreat(ctx context.Context, retreatID uuid.UUID) ([]Entry, error) {
	if s == nil || s.Q == nil {
		return nil, errors.New("waitlist service not configured")
	}
	rows, err := s.Q.ListWaitlistByRetreat(ctx, pgtype.UUID{Bytes: retreatID, Valid: true})
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(rows))
	for _, row := range rows {
		out = append(out, toEntry(row))
	}
	return out, nil
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) notifyTTL() time.Duration {
	if s.NotifyTTL > 0 {
		return s.NotifyTTL
	}
	return 48 * time.Hour
}

func toEntry(row db.WaitlistEntry) Entry {
	return Entry{
		ID:       uuid.UUID(row.ID.Bytes).String(),
		RoomID:   uuid.UUID(row.RoomID.Bytes).String(),
		Email:    row.Email,
		Position: row.Position,
		Status:   row.Status,
	}
}
