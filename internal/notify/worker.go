package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/sagewood/backend-retreats/internal/common"
	"github.com/sagewood/backend-retreats/internal/lock"
)

const waitlistSweepLockKey = "lock:waitlist:sweep"

// WaitlistSweeper lapses stale waitlist reservation windows.
type WaitlistSweeper interface {
	ExpireNotifications(ctx context.Context) (int, error)
}

// Worker handles queued notification tasks.
type Worker struct {
	Mail     common.EmailSender
	Waitlist WaitlistSweeper
	Locker   lock.Locker
	LockTTL  time.Duration
	Log      zerolog.Logger
}

// Register binds the worker's handlers onto the asynq mux.
func (w *Worker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeEmailDeliver, w.HandleEmailDeliver)
	mux.HandleFunc(TypeWaitlistSweep, w.HandleWaitlistSweep)
}

// HandleEmailDeliver sends one queued transactional email.
func (w *Worker) HandleEmailDeliver(_ context.Context, task *asynq.Task) error {
	if w.Mail == nil {
		return errors.New("notify: email sender not configured")
	}
	var p emailPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		// A malformed payload never becomes deliverable; do not retry.
		return fmt.Errorf("notify: decode email payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := w.Mail.Send(p.To, p.Subject, p.Body); err != nil {
		return fmt.Errorf("notify: send email: %w", err)
	}
	w.Log.Info().Str("to", p.To).Str("subject", p.Subject).Msg("email delivered")
	return nil
}

// HandleWaitlistSweep runs the waitlist expiry sweep under a distributed lock
// so overlapping worker instances do not double-process entries.
func (w *Worker) HandleWaitlistSweep(ctx context.Context, _ *asynq.Task) error {
	if w.Waitlist == nil {
		return errors.New("notify: waitlist sweeper not configured")
	}
	ttl := w.LockTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	return w.Locker.WithLock(ctx, waitlistSweepLockKey, ttl, func(ctx context.Context) error {
		processed, err := w.Waitlist.ExpireNotifications(ctx)
		if err != nil {
			return fmt.Errorf("notify: waitlist sweep: %w", err)
		}
		if processed > 0 {
			w.Log.Info().Int("processed", processed).Msg("waitlist reservations expired")
		}
		return nil
	})
}
