package retreat

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"github.com/sagewood/backend-retreats/internal/common"
	"github.com/sagewood/backend-retreats/internal/db"
)

type queryProvider interface {
	ListPublishedRetreats(ctx context.Context) ([]db.Retreat, error)
	GetRetreatBySlug(ctx context.Context, slug string) (db.Retreat, error)
	GetRetreatByID(ctx context.Context, id pgtype.UUID) (db.Retreat, error)
	CreateRetreat(ctx context.Context, arg db.CreateRetreatParams) (db.Retreat, error)
	UpdateRetreat(ctx context.Context, arg db.UpdateRetreatParams) (db.Retreat, error)
	ListRoomsByRetreat(ctx context.Context, retreatID pgtype.UUID) ([]db.Room, error)
	CreateRoom(ctx context.Context, arg db.CreateRoomParams) (db.Room, error)
}

// Service orchestrates retreat queries, DTO assembly, and caching.
type Service struct {
	queries queryProvider
	cache   *Cache
	log     zerolog.Logger
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Queries queryProvider
	Cache   *Cache
	Logger  zerolog.Logger
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Queries == nil {
		return nil, errors.New("retreat: queries provider is required")
	}
	return &Service{queries: cfg.Queries, cache: cfg.Cache, log: cfg.Logger}, nil
}

// Summary represents an entry in the public retreat listing.
type Summary struct {
	ID        string    `json:"id"`
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	Location  string    `json:"location"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
}

// RoomView is the public price and availability snapshot of a room.
type RoomView struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	RegularPrice     int64  `json:"regularPrice"`
	EarlyBirdPrice   int64  `json:"earlyBirdPrice,omitempty"`
	EarlyBirdEnabled bool   `json:"earlyBirdEnabled"`
	DepositPrice     int64  `json:"depositPrice"`
	SpotsLeft        int    `json:"spotsLeft"`
	SoldOut          bool   `json:"soldOut"`
}

// Detail aggregates the full retreat payload including rooms.
type Detail struct {
	Summary
	Rooms []RoomView `json:"rooms"`
}

// List returns published retreats, served from cache when possible.
func (s *Service) List(ctx context.Context) ([]Summary, error) {
	var cached []Summary
	if hit, err := s.cache.GetJSON(ctx, listCacheKey, &cached); err != nil {
		s.log.Warn().Err(err).Msg("retreat list cache read failed")
	} else if hit {
		return cached, nil
	}
	rows, err := s.queries.ListPublishedRetreats(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(rows))
	for _, row := range rows {
		out = append(out, toSummary(row))
	}
	if err := s.cache.SetJSON(ctx, listCacheKey, out); err != nil {
		s.log.Warn().Err(err).Msg("retreat list cache write failed")
	}
	return out, nil
}

// GetBySlug returns the retreat detail with its rooms.
func (s *Service) GetBySlug(ctx context.Context, slug string) (Detail, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return Detail{}, common.NewAppError("BAD_REQUEST", "slug is required", http.StatusBadRequest, nil)
	}
	key := detailCacheKeyBase + slug
	var cached Detail
	if hit, err := s.cache.GetJSON(ctx, key, &cached); err != nil {
		s.log.Warn().Err(err).Str("slug", slug).Msg("retreat detail cache read failed")
	} else if hit {
		return cached, nil
	}
	row, err := s.queries.GetRetreatBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Detail{}, common.NewAppError("NOT_FOUND", "retreat not found", http.StatusNotFound, err)
		}
		return Detail{}, err
	}
	rooms, err := s.queries.ListRoomsByRetreat(ctx, row.ID)
	if err != nil {
		return Detail{}, err
	}
	detail := Detail{Summary: toSummary(row), Rooms: make([]RoomView, 0, len(rooms))}
	for _, room := range rooms {
		detail.Rooms = append(detail.Rooms, toRoomView(room))
	}
	if err := s.cache.SetJSON(ctx, key, detail); err != nil {
		s.log.Warn().Err(err).Str("slug", slug).Msg("retreat detail cache write failed")
	}
	return detail, nil
}

// InvalidateCache drops cached entries after availability or content changes.
func (s *Service) InvalidateCache(ctx context.Context, slug string) {
	if err := s.cache.Invalidate(ctx, slug); err != nil {
		s.log.Warn().Err(err).Str("slug", slug).Msg("retreat cache invalidation failed")
	}
}

// CreateParams holds admin input for a new retreat.
type CreateParams struct {
	Slug      string    `json:"slug" validate:"required"`
	Title     string    `json:"title" validate:"required"`
	Location  string    `json:"location"`
	StartDate time.Time `json:"startDate" validate:"required"`
	EndDate   time.Time `json:"endDate" validate:"required,gtfield=StartDate"`
	Published bool      `json:"published"`
}

// Create inserts a retreat and invalidates the listing cache.
func (s *Service) Create(ctx context.Context, params CreateParams) (Summary, error) {
	row, err := s.queries.CreateRetreat(ctx, db.CreateRetreatParams{
		Slug:      strings.TrimSpace(params.Slug),
		Title:     strings.TrimSpace(params.Title),
		Location:  strings.TrimSpace(params.Location),
		StartDate: pgtype.Timestamptz{Time: params.StartDate, Valid: true},
		EndDate:   pgtype.Timestamptz{Time: params.EndDate, Valid: true},
		Published: params.Published,
	})
	if err != nil {
		return Summary{}, err
	}
	s.InvalidateCache(ctx, row.Slug)
	return toSummary(row), nil
}

// Update mutates a retreat identified by ID and invalidates caches.
func (s *Service) Update(ctx context.Context, id uuid.UUID, params CreateParams) (Summary, error) {
	row, err := s.queries.UpdateRetreat(ctx, db.UpdateRetreatParams{
		ID:        pgtype.UUID{Bytes: id, Valid: true},
		Title:     strings.TrimSpace(params.Title),
		Location:  strings.TrimSpace(params.Location),
		StartDate: pgtype.Timestamptz{Time: params.StartDate, Valid: true},
		EndDate:   pgtype.Timestamptz{Time: params.EndDate, Valid: true},
		Published: params.Published,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Summary{}, common.NewAppError("NOT_FOUND", "retreat not found", http.StatusNotFound, err)
		}
		return Summary{}, err
	}
	s.InvalidateCache(ctx, row.Slug)
	return toSummary(row), nil
}

// RoomParams holds admin input for a new room.
type RoomParams struct {
	Name             string `json:"name" validate:"required"`
	Capacity         int32  `json:"capacity" validate:"required,gt=0"`
	RegularPrice     int64  `json:"regularPrice" validate:"required,gt=0"`
	EarlyBirdPrice   int64  `json:"earlyBirdPrice" validate:"gte=0"`
	EarlyBirdEnabled bool   `json:"earlyBirdEnabled"`
	DepositPrice     int64  `json:"depositPrice" validate:"gte=0"`
}

// AddRoom creates a room under a retreat and invalidates its detail cache.
func (s *Service) AddRoom(ctx context.Context, retreatID uuid.UUID, params RoomParams) (RoomView, error) {
	parent, err := s.queries.GetRetreatByID(ctx, pgtype.UUID{Bytes: retreatID, Valid: true})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RoomView{}, common.NewAppError("NOT_FOUND", "retreat not found", http.StatusNotFound, err)
		}
		return RoomView{}, err
	}
	if params.EarlyBirdEnabled && params.EarlyBirdPrice >= params.RegularPrice {
		return RoomView{}, common.NewAppError("BAD_REQUEST", "early bird price must be below the regular price", http.StatusBadRequest, nil)
	}
	room, err := s.queries.CreateRoom(ctx, db.CreateRoomParams{
		RetreatID:        parent.ID,
		Name:             strings.TrimSpace(params.Name),
		Capacity:         params.Capacity,
		RegularPrice:     params.RegularPrice,
		EarlyBirdPrice:   params.EarlyBirdPrice,
		EarlyBirdEnabled: params.EarlyBirdEnabled,
		DepositPrice:     params.DepositPrice,
	})
	if err != nil {
		return RoomView{}, err
	}
	s.InvalidateCache(ctx, parent.Slug)
	return toRoomView(room), nil
}

func toSummary(row db.Retreat) Summary {
	return Summary{
		ID:        uuid.UUID(row.ID.Bytes).String(),
		Slug:      row.Slug,
		Title:     row.Title,
		Location:  row.Location,
		StartDate: row.StartDate.Time,
		EndDate:   row.EndDate.Time,
	}
}

func toRoomView(room db.Room) RoomView {
	spotsLeft := int(room.Capacity - room.BookedCount)
	if spotsLeft < 0 {
		spotsLeft = 0
	}
	return RoomView{
		ID:               uuid.UUID(room.ID.Bytes).String(),
		Name:             room.Name,
		RegularPrice:     room.RegularPrice,
		EarlyBirdPrice:   room.EarlyBirdPrice,
		EarlyBirdEnabled: room.EarlyBirdEnabled,
		DepositPrice:     room.DepositPrice,
		SpotsLeft:        spotsLeft,
		SoldOut:          spotsLeft == 0,
	}
}
