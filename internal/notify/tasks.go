package notify

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/hibiken/asynq"
)

// Task type names understood by the worker.
const (
	TypeEmailDeliver  = "email:deliver"
	TypeWaitlistSweep = "waitlist:sweep"
)

type emailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewEmailDeliverTask builds the asynq task carrying one transactional email.
func NewEmailDeliverTask(to, subject, body string) (*asynq.Task, error) {
	to = strings.TrimSpace(to)
	if to == "" {
		return nil, errors.New("notify: recipient is required")
	}
	payload, err := json.Marshal(emailPayload{To: to, Subject: subject, Body: body})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeEmailDeliver, payload,
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
	), nil
}

// NewWaitlistSweepTask builds the periodic task that lapses stale waitlist
// reservation windows.
func NewWaitlistSweepTask() *asynq.Task {
	return asynq.NewTask(TypeWaitlistSweep, nil, asynq.MaxRetry(1))
}
