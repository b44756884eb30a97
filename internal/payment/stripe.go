package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	providerStripe           = "stripe"
	stripeSignatureTolerance = 5 * time.Minute
)

// Stripe implements the Provider interface against the Stripe Checkout and
// Refund REST APIs using form-encoded requests.
type Stripe struct {
	SecretKey     string
	WebhookSecret string
	BaseURL       string
	SuccessURL    string
	CancelURL     string
	HTTPClient    *http.Client

	// now is overridable in tests for signature tolerance checks.
	now func() time.Time
}

// NewStripe constructs a Stripe provider with an instrumented HTTP client.
func NewStripe(secretKey, webhookSecret, baseURL, successURL, cancelURL string) *Stripe {
	return &Stripe{
		SecretKey:     secretKey,
		WebhookSecret: webhookSecret,
		BaseURL:       baseURL,
		SuccessURL:    successURL,
		CancelURL:     cancelURL,
		HTTPClient: &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type stripeSession struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	ExpiresAt     int64  `json:"expires_at"`
	PaymentIntent string `json:"payment_intent"`
	AmountTotal   int64  `json:"amount_total"`
}

// CreateSession opens a hosted checkout session for a single charge.
func (s *Stripe) CreateSession(ctx context.Context, req SessionRequest) (SessionResponse, error) {
	if strings.TrimSpace(req.PaymentRef) == "" {
		return SessionResponse{}, errors.New("payment reference is required")
	}
	if req.Amount <= 0 {
		return SessionResponse{}, errors.New("amount must be positive")
	}
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("client_reference_id", req.PaymentRef)
	form.Set("success_url", s.SuccessURL)
	form.Set("cancel_url", s.CancelURL)
	if req.Email != "" {
		form.Set("customer_email", req.Email)
	}
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", strings.ToLower(req.Currency))
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(req.Amount, 10))
	form.Set("line_items[0][price_data][product_data][name]", req.Description)
	form.Set("metadata[booking_id]", req.BookingID)
	if req.ExpiresIn > 0 {
		form.Set("expires_at", strconv.FormatInt(s.clock().Add(req.ExpiresIn).Unix(), 10))
	}

	var session stripeSession
	if err := s.do(ctx, http.MethodPost, "/v1/checkout/sessions", form, &session); err != nil {
		return SessionResponse{}, err
	}
	return SessionResponse{
		Provider:   providerStripe,
		SessionID:  session.ID,
		PaymentURL: session.URL,
		ExpiresAt:  session.ExpiresAt,
	}, nil
}

// VerifyWebhook validates the Stripe-Signature header and normalises the event.
//
// Stripe signs "<timestamp>.<body>" with the endpoint secret; signatures older
// than the tolerance window are rejected to bound replays at the crypto layer.
func (s *Stripe) VerifyWebhook(r *http.Request, body []byte) (WebhookVerifyResult, error) {
	header := r.Header.Get("Stripe-Signature")
	timestamp, signatures := parseSignatureHeader(header)
	if timestamp == 0 || len(signatures) == 0 {
		return WebhookVerifyResult{Valid: false, Err: errors.New("malformed signature header")}, nil
	}
	if age := s.clock().Sub(time.Unix(timestamp, 0)); age > stripeSignatureTolerance || age < -stripeSignatureTolerance {
		return WebhookVerifyResult{Valid: false, Err: errors.New("signature timestamp outside tolerance")}, nil
	}
	expected := computeStripeSignature(s.WebhookSecret, timestamp, body)
	matched := false
	for _, sig := range signatures {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			matched = true
			break
		}
	}
	if !matched {
		return WebhookVerifyResult{Valid: false, Err: errors.New("invalid signature")}, nil
	}

	var event struct {
		Type string `json:"type"`
		Data struct {
			Object stripeSession `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		return WebhookVerifyResult{Valid: false, Err: err}, nil
	}
	if event.Data.Object.ID == "" {
		return WebhookVerifyResult{Valid: false, Err: errors.New("missing session id")}, nil
	}
	return WebhookVerifyResult{
		Valid:           true,
		SessionID:       event.Data.Object.ID,
		Amount:          event.Data.Object.AmountTotal,
		Status:          normaliseStripeEvent(event.Type),
		ProviderPayload: body,
	}, nil
}

// Refund reverses the charge behind a checkout session, in full when amount
// is zero or partially otherwise.
func (s *Stripe) Refund(ctx context.Context, sessionID string, amount int64) error {
	if strings.TrimSpace(sessionID) == "" {
		return errors.New("session id is required")
	}
	var session stripeSession
	if err := s.do(ctx, http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(sessionID), nil, &session); err != nil {
		return err
	}
	if session.PaymentIntent == "" {
		return errors.New("session has no payment intent to refund")
	}
	form := url.Values{}
	form.Set("payment_intent", session.PaymentIntent)
	if amount > 0 {
		form.Set("amount", strconv.FormatInt(amount, 10))
	}
	return s.do(ctx, http.MethodPost, "/v1/refunds", form, &struct{}{})
}

func (s *Stripe) do(ctx context.Context, method, path string, form url.Values, dst any) error {
	base := strings.TrimRight(s.BaseURL, "/")
	if base == "" {
		base = "https://api.stripe.com"
	}
	var reader io.Reader
	if form != nil {
		reader = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, base+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.SecretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	client := s.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
				Code    string `json:"code"`
			} `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("stripe %s %s: %s (%s)", method, path, apiErr.Error.Message, apiErr.Error.Code)
		}
		return fmt.Errorf("stripe %s %s: status %d", method, path, resp.StatusCode)
	}
	return json.Unmarshal(data, dst)
}

func (s *Stripe) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func parseSignatureHeader(header string) (int64, []string) {
	var timestamp int64
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err == nil {
				timestamp = parsed
			}
		case "v1":
			signatures = append(signatures, value)
		}
	}
	return timestamp, signatures
}

func computeStripeSignature(secret string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func normaliseStripeEvent(eventType string) string {
	switch eventType {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		return "PAID"
	case "checkout.session.async_payment_failed":
		return "FAILED"
	case "checkout.session.expired":
		return "EXPIRED"
	case "charge.refunded":
		return "REFUNDED"
	default:
		return "PENDING"
	}
}
