package events

// Topic constants for domain events emitted by the booking platform.
const (
	TopicBookingCreated   = "booking.created"
	TopicBookingPaid      = "booking.paid"
	TopicBookingCanceled  = "booking.canceled"
	TopicPaymentFailed    = "payment.failed"
	TopicPaymentExpired   = "payment.expired"
	TopicPaymentRefunded  = "payment.refunded"
	TopicWaitlistNotified = "waitlist.notified"
	TopicWaitlistExpired  = "waitlist.expired"
)

// DefaultTopics returns the canonical list of topics that support notifications.
func DefaultTopics() []string {
	return []string{
		TopicBookingCreated,
		TopicBookingPaid,
		TopicBookingCanceled,
		TopicPaymentFailed,
		TopicPaymentExpired,
		TopicPaymentRefunded,
		TopicWaitlistNotified,
		TopicWaitlistExpired,
	}
}
