package events_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	"github.com/sagewood/backend-retreats/internal/db"
	"github.com/sagewood/backend-retreats/internal/events"
)

type stubStore struct {
	inserted []db.InsertDomainEventParams
	err      error
}

func (s *stubStore) InsertDomainEvent(_ context.Context, arg db.InsertDomainEventParams) (db.DomainEvent, error) {
	if s.err != nil {
		return db.DomainEvent{}, s.err
	}
	s.inserted = append(s.inserted, arg)
	return db.DomainEvent{
		ID:          pgtype.UUID{Bytes: uuid.New(), Valid: true},
		Topic:       arg.Topic,
		AggregateID: arg.AggregateID,
		Payload:     arg.Payload,
	}, nil
}

type recordingNotifier struct {
	topics []string
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, ev db.DomainEvent) error {
	n.topics = append(n.topics, ev.Topic)
	return n.err
}

func TestEmitPersistsAndNotifies(t *testing.T) {
	t.Parallel()

	store := &stubStore{}
	notifier := &recordingNotifier{}
	bus := &events.Bus{Store: store, Notifiers: []events.Notifier{notifier}}

	agg := pgtype.UUID{Bytes: uuid.New(), Valid: true}
	ev, err := bus.Emit(context.Background(), events.TopicBookingCreated, agg, map[string]any{"bookingId": "b1"})
	require.NoError(t, err)
	require.Equal(t, events.TopicBookingCreated, ev.Topic)
	require.Len(t, store.inserted, 1)
	require.JSONEq(t, `{"bookingId":"b1"}`, string(store.inserted[0].Payload))
	require.Equal(t, []string{events.TopicBookingCreated}, notifier.topics)
}

func TestEmitValidatesInput(t *testing.T) {
	t.Parallel()

	bus := &events.Bus{Store: &stubStore{}}
	agg := pgtype.UUID{Bytes: uuid.New(), Valid: true}

	_, err := bus.Emit(context.Background(), "  ", agg, nil)
	require.Error(t, err)

	_, err = bus.Emit(context.Background(), events.TopicBookingPaid, pgtype.UUID{}, nil)
	require.Error(t, err)

	_, err = bus.Emit(context.Background(), events.TopicBookingPaid, agg, []byte(`not json`))
	require.Error(t, err)
}

func TestEmitJoinsNotifierErrors(t *testing.T) {
	t.Parallel()

	store := &stubStore{}
	boom := errors.New("smtp down")
	bus := &events.Bus{Store: store, Notifiers: []events.Notifier{&recordingNotifier{err: boom}}}

	agg := pgtype.UUID{Bytes: uuid.New(), Valid: true}
	ev, err := bus.Emit(context.Background(), events.TopicBookingPaid, agg, nil)
	require.ErrorIs(t, err, boom)
	// The event is still persisted even when a notifier fails.
	require.Equal(t, events.TopicBookingPaid, ev.Topic)
	require.Len(t, store.inserted, 1)
}
