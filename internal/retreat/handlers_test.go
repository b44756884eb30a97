package retreat_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/sagewood/backend-retreats/internal/db"
	"github.com/sagewood/backend-retreats/internal/retreat"
)

type fakeQueries struct {
	retreats []db.Retreat
	rooms    map[string][]db.Room

	listCalls int
	slugCalls int
}

func (f *fakeQueries) ListPublishedRetreats(_ context.Context) ([]db.Retreat, error) {
	f.listCalls++
	return f.retreats, nil
}

func (f *fakeQueries) GetRetreatBySlug(_ context.Context, slug string) (db.Retreat, error) {
	f.slugCalls++
	for _, r := range f.retreats {
		if r.Slug == slug {
			return r, nil
		}
	}
	return db.Retreat{}, pgx.ErrNoRows
}

func (f *fakeQueries) GetRetreatByID(_ context.Context, id pgtype.UUID) (db.Retreat, error) {
	for _, r := range f.retreats {
		if r.ID == id {
			return r, nil
		}
	}
	return db.Retreat{}, pgx.ErrNoRows
}

func (f *fakeQueries) CreateRetreat(_ context.Context, arg db.CreateRetreatParams) (db.Retreat, error) {
	row := db.Retreat{
		ID:        pgtype.UUID{Bytes: uuid.New(), Valid: true},
		Slug:      arg.Slug,
		Title:     arg.Title,
		Location:  arg.Location,
		StartDate: arg.StartDate,
		EndDate:   arg.EndDate,
		Published: arg.Published,
	}
	f.retreats = append(f.retreats, row)
	return row, nil
}

func (f *fakeQueries) UpdateRetreat(_ context.Context, arg db.UpdateRetreatParams) (db.Retreat, error) {
	for i, r := range f.retreats {
		if r.ID == arg.ID {
			f.retreats[i].Title = arg.Title
			return f.retreats[i], nil
		}
	}
	return db.Retreat{}, pgx.ErrNoRows
}

func (f *fakeQueries) ListRoomsByRetreat(_ context.Context, retreatID pgtype.UUID) ([]db.Room, error) {
	return f.rooms[uuid.UUID(retreatID.Bytes).String()], nil
}

func (f *fakeQueries) CreateRoom(_ context.Context, arg db.CreateRoomParams) (db.Room, error) {
	room := db.Room{
		ID:               pgtype.UUID{Bytes: uuid.New(), Valid: true},
		RetreatID:        arg.RetreatID,
		Name:             arg.Name,
		Capacity:         arg.Capacity,
		RegularPrice:     arg.RegularPrice,
		EarlyBirdPrice:   arg.EarlyBirdPrice,
		EarlyBirdEnabled: arg.EarlyBirdEnabled,
		DepositPrice:     arg.DepositPrice,
	}
	key := uuid.UUID(arg.RetreatID.Bytes).String()
	if f.rooms == nil {
		f.rooms = map[string][]db.Room{}
	}
	f.rooms[key] = append(f.rooms[key], room)
	return room, nil
}

func seedRetreat(t *testing.T) (db.Retreat, db.Room) {
	t.Helper()
	retreatID := pgtype.UUID{Bytes: uuid.New(), Valid: true}
	start := time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC)
	return db.Retreat{
			ID:        retreatID,
			Slug:      "alps-autumn",
			Title:     "Autumn in the Alps",
			Location:  "Tyrol",
			StartDate: pgtype.Timestamptz{Time: start, Valid: true},
			EndDate:   pgtype.Timestamptz{Time: start.AddDate(0, 0, 7), Valid: true},
			Published: true,
		}, db.Room{
			ID:               pgtype.UUID{Bytes: uuid.New(), Valid: true},
			RetreatID:        retreatID,
			Name:             "Double room",
			Capacity:         8,
			BookedCount:      6,
			RegularPrice:     80_000,
			EarlyBirdPrice:   72_000,
			EarlyBirdEnabled: true,
			DepositPrice:     8_000,
		}
}

func newTestService(t *testing.T, queries *fakeQueries, client *redis.Client) *retreat.Service {
	t.Helper()
	svc, err := retreat.NewService(retreat.ServiceConfig{
		Queries: queries,
		Cache:   retreat.NewCache(client, time.Minute),
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)
	return svc
}

func TestDetailIncludesRoomAvailability(t *testing.T) {
	row, room := seedRetreat(t)
	queries := &fakeQueries{
		retreats: []db.Retreat{row},
		rooms:    map[string][]db.Room{uuid.UUID(row.ID.Bytes).String(): {room}},
	}
	handler := retreat.NewHandler(retreat.HandlerConfig{Service: newTestService(t, queries, nil)})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/retreats/alps-autumn", nil)
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("slug", "alps-autumn")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
	rec := httptest.NewRecorder()
	handler.Detail(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data retreat.Detail `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "Autumn in the Alps", resp.Data.Title)
	require.Len(t, resp.Data.Rooms, 1)
	require.Equal(t, 2, resp.Data.Rooms[0].SpotsLeft)
	require.False(t, resp.Data.Rooms[0].SoldOut)
	require.EqualValues(t, 80_000, resp.Data.Rooms[0].RegularPrice)
}

func TestDetailNotFound(t *testing.T) {
	handler := retreat.NewHandler(retreat.HandlerConfig{Service: newTestService(t, &fakeQueries{}, nil)})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/retreats/missing", nil)
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("slug", "missing")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
	rec := httptest.NewRecorder()
	handler.Detail(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListServedFromCache(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	row, _ := seedRetreat(t)
	queries := &fakeQueries{retreats: []db.Retreat{row}}
	svc := newTestService(t, queries, client)

	first, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, queries.listCalls)

	// Mutations must drop the cached listing.
	_, err = svc.Create(context.Background(), retreat.CreateParams{
		Slug:      "coast-spring",
		Title:     "Spring on the Coast",
		StartDate: time.Date(2027, time.April, 10, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2027, time.April, 17, 0, 0, 0, 0, time.UTC),
		Published: true,
	})
	require.NoError(t, err)

	third, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, third, 2)
	require.Equal(t, 2, queries.listCalls)
}

func TestAddRoomRejectsEarlyBirdAboveRegular(t *testing.T) {
	row, _ := seedRetreat(t)
	queries := &fakeQueries{retreats: []db.Retreat{row}}
	handler := retreat.NewHandler(retreat.HandlerConfig{Service: newTestService(t, queries, nil)})

	body := `{"name":"Suite","capacity":2,"regularPrice":90000,"earlyBirdPrice":95000,"earlyBirdEnabled":true,"depositPrice":9000}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/retreats/"+uuid.UUID(row.ID.Bytes).String()+"/rooms", strings.NewReader(body))
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("id", uuid.UUID(row.ID.Bytes).String())
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
	rec := httptest.NewRecorder()
	handler.AddRoom(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateRetreatValidation(t *testing.T) {
	handler := retreat.NewHandler(retreat.HandlerConfig{Service: newTestService(t, &fakeQueries{}, nil)})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/retreats", strings.NewReader(`{"title":"No slug"}`))
	rec := httptest.NewRecorder()
	handler.Create(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
