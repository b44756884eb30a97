package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/sagewood/backend-retreats/internal/db"
	"github.com/sagewood/backend-retreats/internal/events"
)

// TaskEnqueuer is the slice of the asynq client the notifier needs.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// EmailNotifier turns domain events into queued transactional emails. It
// implements events.Notifier; actual delivery happens in the worker.
type EmailNotifier struct {
	Tasks        TaskEnqueuer
	Enabled      bool
	TopicToggles map[string]bool
}

// Notify implements the events.Notifier interface.
func (n EmailNotifier) Notify(ctx context.Context, event db.DomainEvent) error {
	if !n.Enabled || n.Tasks == nil {
		return nil
	}
	if n.TopicToggles != nil {
		if enabled, ok := n.TopicToggles[event.Topic]; ok && !enabled {
			return nil
		}
	}
	payload := map[string]any{}
	if len(event.Payload) > 0 {
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return fmt.Errorf("email notify: decode payload: %w", err)
		}
	}
	to := extractRecipient(payload)
	if to == "" {
		return nil
	}
	task, err := NewEmailDeliverTask(to, subjectFor(event.Topic), bodyFor(event.Topic, payload, event.OccurredAt.Time))
	if err != nil {
		return fmt.Errorf("email notify: build task: %w", err)
	}
	if _, err := n.Tasks.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("email notify: enqueue: %w", err)
	}
	return nil
}

func extractRecipient(payload map[string]any) string {
	keys := []string{"email", "recipient", "customerEmail"}
	for _, key := range keys {
		if val, ok := payload[key]; ok {
			if s, ok := val.(string); ok {
				s = strings.TrimSpace(s)
				if s != "" {
					return s
				}
			}
		}
	}
	return ""
}

func subjectFor(topic string) string {
	switch topic {
	case events.TopicBookingCreated:
		return "Your booking is reserved"
	case events.TopicBookingPaid:
		return "Payment received"
	case events.TopicBookingCanceled:
		return "Your booking was canceled"
	case events.TopicPaymentFailed:
		return "Payment failed"
	case events.TopicPaymentExpired:
		return "Payment window expired"
	case events.TopicPaymentRefunded:
		return "Your refund is on the way"
	case events.TopicWaitlistNotified:
		return "A spot opened up"
	case events.TopicWaitlistExpired:
		return "Your waitlist reservation lapsed"
	default:
		return fmt.Sprintf("Update on %s", topic)
	}
}

func bodyFor(topic string, payload map[string]any, occurred time.Time) string {
	summary := fmt.Sprintf("Event %s occurred at %s.", topic, occurred.Format(time.RFC3339))
	if bookingID, ok := payload["bookingId"].(string); ok && bookingID != "" {
		summary += fmt.Sprintf("\nBooking: %s", bookingID)
	}
	if roomID, ok := payload["roomId"].(string); ok && roomID != "" {
		summary += fmt.Sprintf("\nRoom: %s", roomID)
	}
	if expires, ok := payload["expiresAt"].(string); ok && expires != "" {
		summary += fmt.Sprintf("\nReserved until: %s", expires)
	}
	if note, ok := payload["message"].(string); ok && note != "" {
		summary += "\n" + note
	}
	return summary
}
