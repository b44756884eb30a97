package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func signedRequest(t *testing.T, secret string, at time.Time, body string) *http.Request {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", at.Unix(), body)
	sig := hex.EncodeToString(mac.Sum(nil))
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", nil)
	req.Header.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", at.Unix(), sig))
	return req
}

const completedEvent = `{"type":"checkout.session.completed","data":{"object":{"id":"cs_test_123","amount_total":8000,"payment_intent":"pi_1"}}}`

func TestVerifyWebhookAcceptsValidSignature(t *testing.T) {
	now := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	s := &Stripe{WebhookSecret: "whsec_test", now: func() time.Time { return now }}

	req := signedRequest(t, "whsec_test", now, completedEvent)
	result, err := s.VerifyWebhook(req, []byte(completedEvent))
	require.NoError(t, err)
	require.True(t, result.Valid)
	require.Equal(t, "cs_test_123", result.SessionID)
	require.EqualValues(t, 8000, result.Amount)
	require.Equal(t, "PAID", result.Status)
}

func TestVerifyWebhookRejectsBadSignature(t *testing.T) {
	now := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	s := &Stripe{WebhookSecret: "whsec_test", now: func() time.Time { return now }}

	req := signedRequest(t, "whsec_other", now, completedEvent)
	result, err := s.VerifyWebhook(req, []byte(completedEvent))
	require.NoError(t, err)
	require.False(t, result.Valid)
}

func TestVerifyWebhookRejectsStaleTimestamp(t *testing.T) {
	now := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	s := &Stripe{WebhookSecret: "whsec_test", now: func() time.Time { return now }}

	req := signedRequest(t, "whsec_test", now.Add(-10*time.Minute), completedEvent)
	result, err := s.VerifyWebhook(req, []byte(completedEvent))
	require.NoError(t, err)
	require.False(t, result.Valid)
}

func TestVerifyWebhookRejectsMissingHeader(t *testing.T) {
	s := &Stripe{WebhookSecret: "whsec_test"}
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", nil)
	result, err := s.VerifyWebhook(req, []byte(completedEvent))
	require.NoError(t, err)
	require.False(t, result.Valid)
}

func TestNormaliseStripeEvent(t *testing.T) {
	require.Equal(t, "PAID", normaliseStripeEvent("checkout.session.completed"))
	require.Equal(t, "EXPIRED", normaliseStripeEvent("checkout.session.expired"))
	require.Equal(t, "FAILED", normaliseStripeEvent("checkout.session.async_payment_failed"))
	require.Equal(t, "REFUNDED", normaliseStripeEvent("charge.refunded"))
	require.Equal(t, "PENDING", normaliseStripeEvent("invoice.created"))
}

func TestCreateSessionSendsFormEncodedRequest(t *testing.T) {
	var gotPath, gotAuth, gotRef string
	var gotAmount string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, r.ParseForm())
		gotRef = r.PostForm.Get("client_reference_id")
		gotAmount = r.PostForm.Get("line_items[0][price_data][unit_amount]")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"cs_test_456","url":"https://checkout.stripe.test/cs_test_456","expires_at":1750000000}`)
	}))
	defer server.Close()

	s := NewStripe("sk_test", "whsec_test", server.URL, "https://shop.test/ok", "https://shop.test/cancel")
	resp, err := s.CreateSession(context.Background(), SessionRequest{
		PaymentRef:  "pay-1",
		BookingID:   "book-1",
		Amount:      8000,
		Currency:    "EUR",
		Email:       "anna@example.com",
		Description: "Deposit",
		ExpiresIn:   30 * time.Minute,
	})
	require.NoError(t, err)
	require.Equal(t, "/v1/checkout/sessions", gotPath)
	require.Equal(t, "Bearer sk_test", gotAuth)
	require.Equal(t, "pay-1", gotRef)
	require.Equal(t, "8000", gotAmount)
	require.Equal(t, "cs_test_456", resp.SessionID)
	require.Equal(t, "https://checkout.stripe.test/cs_test_456", resp.PaymentURL)
}

func TestCreateSessionRejectsInvalidInput(t *testing.T) {
	s := NewStripe("sk_test", "whsec_test", "", "", "")
	_, err := s.CreateSession(context.Background(), SessionRequest{Amount: 100})
	require.Error(t, err)
	_, err = s.CreateSession(context.Background(), SessionRequest{PaymentRef: "p", Amount: 0})
	require.Error(t, err)
}
