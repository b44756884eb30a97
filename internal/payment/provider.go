package payment

import (
	"context"
	"net/http"
	"time"
)

// SessionRequest captures the information required to open a hosted checkout
// session with a provider. PaymentRef is the internal payment row ID and is
// echoed back by webhooks as the client reference.
type SessionRequest struct {
	PaymentRef  string
	BookingID   string
	Amount      int64
	Currency    string
	Email       string
	Description string
	ExpiresIn   time.Duration
}

// SessionResponse represents the minimal information returned by a provider
// when creating a checkout session.
type SessionResponse struct {
	Provider   string
	SessionID  string
	PaymentURL string
	ExpiresAt  int64
}

// WebhookVerifyResult contains the normalised data extracted from a webhook
// notification after signature verification.
type WebhookVerifyResult struct {
	Valid           bool
	SessionID       string
	Amount          int64
	Status          string
	ProviderPayload []byte
	Err             error
}

// Provider abstracts the operations required from an upstream payment provider.
type Provider interface {
	CreateSession(ctx context.Context, req SessionRequest) (SessionResponse, error)
	VerifyWebhook(r *http.Request, body []byte) (WebhookVerifyResult, error)
	Refund(ctx context.Context, sessionID string, amount int64) error
}
