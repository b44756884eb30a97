package payment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"

	"github.com/sagewood/backend-retreats/internal/common"
	"github.com/sagewood/backend-retreats/internal/db"
	"github.com/sagewood/backend-retreats/internal/events"
	"github.com/sagewood/backend-retreats/internal/obs"
	"github.com/sagewood/backend-retreats/internal/pricing"
)

// PromoSettler records promo redemptions as part of booking settlement.
type PromoSettler interface {
	Settle(ctx context.Context, code string, bookingID pgtype.UUID, email string, amount pricing.Money) error
}

// WaitlistPromoter notifies the next waiting customer when a spot frees up.
type WaitlistPromoter interface {
	PromoteNext(ctx context.Context, roomID pgtype.UUID) error
}

// Webhook handles payment provider callbacks, including signature
// verification, replay protection, and booking settlement.
type Webhook struct {
	Q         *db.Queries
	Pool      *pgxpool.Pool
	Provider  Provider
	Replay    *redis.Client
	ReplayTTL time.Duration
	Promo     PromoSettler
	Waitlist  WaitlistPromoter
	Events    *events.Bus
}

// Handle processes a provider callback delivered to POST /webhooks/payment.
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	if h.Q == nil || h.Provider == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "webhook unavailable", nil)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	result, err := h.Provider.VerifyWebhook(r, body)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "WEBHOOK_INVALID", err.Error(), nil)
		return
	}
	if !result.Valid {
		common.JSONError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "signature verification failed", nil)
		return
	}
	if h.Replay != nil && h.ReplayTTL > 0 {
		key := fmt.Sprintf("wh:stripe:%s", common.Sha256Hex(body))
		ok, err := h.Replay.SetNX(r.Context(), key, "1", h.ReplayTTL).Result()
		if err != nil {
			common.JSONError(w, http.StatusInternalServerError, "REPLAY_STORE_ERROR", err.Error(), nil)
			return
		}
		if !ok {
			common.JSONError(w, http.StatusConflict, "REPLAY", "duplicate webhook", nil)
			return
		}
	}

	ctx := r.Context()
	q := h.Q
	var tx pgx.Tx
	if h.Pool != nil {
		tx, err = h.Pool.BeginTx(ctx, pgx.TxOptions{})
		if err != nil {
			common.JSONError(w, http.StatusInternalServerError, "TX_ERROR", err.Error(), nil)
			return
		}
		defer func() { _ = tx.Rollback(ctx) }()
		q = h.Q.WithTx(tx)
	}

	pay, err := q.GetPaymentByProviderRef(ctx, result.SessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			common.JSONError(w, http.StatusNotFound, "PAYMENT_NOT_FOUND", "payment not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_FETCH_ERROR", err.Error(), nil)
		return
	}
	if result.Amount > 0 && pay.Amount != result.Amount {
		common.JSONError(w, http.StatusBadRequest, "AMOUNT_MISMATCH", "provider amount mismatch", nil)
		return
	}
	newStatus := normaliseWebhookStatus(result.Status)
	shouldSettle := newStatus == db.PaymentStatusPaid && pay.Status != db.PaymentStatusPaid

	if err := q.UpdatePaymentStatus(ctx, db.UpdatePaymentStatusParams{ID: pay.ID, Status: newStatus}); err != nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_UPDATE_ERROR", err.Error(), nil)
		return
	}
	booking, err := q.GetBookingByID(ctx, pay.BookingID)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "BOOKING_FETCH_ERROR", err.Error(), nil)
		return
	}

	bookingCanceled := false
	switch newStatus {
	case db.PaymentStatusPaid:
		if shouldSettle {
			if pay.InstallmentID.Valid {
				if err := q.MarkInstallmentPaid(ctx, pay.InstallmentID); err != nil {
					common.JSONError(w, http.StatusInternalServerError, "INSTALLMENT_UPDATE_ERROR", err.Error(), nil)
					return
				}
			}
			pending, err := q.CountPendingInstallments(ctx, booking.ID)
			if err != nil {
				common.JSONError(w, http.StatusInternalServerError, "INSTALLMENT_COUNT_ERROR", err.Error(), nil)
				return
			}
			nextStatus := db.BookingStatusConfirmed
			if pending == 0 {
				nextStatus = db.BookingStatusPaid
			}
			booking, err = q.UpdateBookingStatus(ctx, db.UpdateBookingStatusParams{ID: booking.ID, Status: nextStatus})
			if err != nil {
				common.JSONError(w, http.StatusInternalServerError, "BOOKING_UPDATE_ERROR", err.Error(), nil)
				return
			}
			if h.Promo != nil && booking.PromoCode.Valid && booking.DiscountSource == pricing.SourcePromoCode.String() {
				code := strings.TrimSpace(booking.PromoCode.String)
				if code != "" {
					if err := h.Promo.Settle(ctx, code, booking.ID, booking.CustomerEmail, booking.PricingDiscount); err != nil {
						common.JSONError(w, http.StatusInternalServerError, "PROMO_SETTLEMENT_FAILED", err.Error(), nil)
						return
					}
				}
			}
		}
	case db.PaymentStatusFailed, db.PaymentStatusExpired:
		if booking.Status == db.BookingStatusPendingPayment {
			booking, err = q.UpdateBookingStatus(ctx, db.UpdateBookingStatusParams{ID: booking.ID, Status: db.BookingStatusCanceled})
			if err == nil {
				bookingCanceled = true
				_ = q.VoidInstallmentsByBooking(ctx, booking.ID)
				_ = q.DecrementRoomBooked(ctx, booking.RoomID)
			}
		}
	case db.PaymentStatusRefunded:
		booking, _ = q.UpdateBookingStatus(ctx, db.UpdateBookingStatusParams{ID: booking.ID, Status: db.BookingStatusRefunded})
	}

	if tx != nil {
		if err := tx.Commit(ctx); err != nil {
			common.JSONError(w, http.StatusInternalServerError, "TX_COMMIT_ERROR", err.Error(), nil)
			return
		}
	}

	if bookingCanceled && h.Waitlist != nil {
		_ = h.Waitlist.PromoteNext(ctx, booking.RoomID)
	}
	if h.Events != nil {
		payload := map[string]any{
			"bookingId": uuid.UUID(booking.ID.Bytes).String(),
			"paymentId": uuid.UUID(pay.ID.Bytes).String(),
			"email":     booking.CustomerEmail,
			"status":    newStatus,
		}
		switch newStatus {
		case db.PaymentStatusPaid:
			_, _ = h.Events.Emit(ctx, events.TopicBookingPaid, booking.ID, payload)
		case db.PaymentStatusFailed:
			_, _ = h.Events.Emit(ctx, events.TopicPaymentFailed, booking.ID, payload)
			if bookingCanceled {
				_, _ = h.Events.Emit(ctx, events.TopicBookingCanceled, booking.ID, payload)
			}
		case db.PaymentStatusExpired:
			_, _ = h.Events.Emit(ctx, events.TopicPaymentExpired, booking.ID, payload)
			if bookingCanceled {
				_, _ = h.Events.Emit(ctx, events.TopicBookingCanceled, booking.ID, payload)
			}
		case db.PaymentStatusRefunded:
			_, _ = h.Events.Emit(ctx, events.TopicPaymentRefunded, booking.ID, payload)
		}
	}
	if obs.PaymentWebhookTotal != nil {
		obs.PaymentWebhookTotal.WithLabelValues(providerStripe, strings.ToLower(newStatus)).Inc()
	}
	w.WriteHeader(http.StatusNoContent)
}

func normaliseWebhookStatus(status string) string {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "PAID", "SUCCESS", "SETTLED":
		return db.PaymentStatusPaid
	case "FAILED", "CANCELED", "DENY":
		return db.PaymentStatusFailed
	case "EXPIRED":
		return db.PaymentStatusExpired
	case "REFUNDED":
		return db.PaymentStatusRefunded
	default:
		return db.PaymentStatusPending
	}
}
