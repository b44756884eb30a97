package payment

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/sagewood/backend-retreats/internal/common"
	"github.com/sagewood/backend-retreats/internal/db"
	"github.com/sagewood/backend-retreats/internal/events"
	"github.com/sagewood/backend-retreats/internal/obs"
)

// Handler exposes admin payment endpoints.
type Handler struct {
	Q        *db.Queries
	Provider Provider
	Events   *events.Bus
}

type refundRequest struct {
	// Amount in minor units; zero means a full refund.
	Amount int64 `json:"amount"`
}

// Refund handles POST /api/v1/admin/payments/{id}/refund.
func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Q == nil || h.Provider == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "refunds unavailable", nil)
		return
	}
	raw := strings.TrimSpace(chi.URLParam(r, "id"))
	parsed, err := uuid.Parse(raw)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payment id", nil)
		return
	}
	var req refundRequest
	if r.Body != nil {
		// An empty body means a full refund.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Amount < 0 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "amount must not be negative", nil)
		return
	}
	ctx := r.Context()
	pay, err := h.Q.GetPaymentByID(ctx, pgtype.UUID{Bytes: parsed, Valid: true})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "payment not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_FETCH_ERROR", err.Error(), nil)
		return
	}
	if pay.Status != db.PaymentStatusPaid {
		common.JSONError(w, http.StatusConflict, "NOT_REFUNDABLE", "only paid payments can be refunded", nil)
		return
	}
	if req.Amount > pay.Amount {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "refund exceeds captured amount", nil)
		return
	}
	if err := h.Provider.Refund(ctx, pay.ProviderRef, req.Amount); err != nil {
		if obs.RefundsTotal != nil {
			obs.RefundsTotal.WithLabelValues("failed").Inc()
		}
		common.JSONError(w, http.StatusBadGateway, "REFUND_FAILED", err.Error(), nil)
		return
	}
	if obs.RefundsTotal != nil {
		obs.RefundsTotal.WithLabelValues("ok").Inc()
	}
	if err := h.Q.UpdatePaymentStatus(ctx, db.UpdatePaymentStatusParams{ID: pay.ID, Status: db.PaymentStatusRefunded}); err != nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_UPDATE_ERROR", err.Error(), nil)
		return
	}
	booking, err := h.Q.UpdateBookingStatus(ctx, db.UpdateBookingStatusParams{ID: pay.BookingID, Status: db.BookingStatusRefunded})
	if err == nil && h.Events != nil {
		_, _ = h.Events.Emit(ctx, events.TopicPaymentRefunded, booking.ID, map[string]any{
			"bookingId": uuid.UUID(booking.ID.Bytes).String(),
			"paymentId": uuid.UUID(pay.ID.Bytes).String(),
			"email":     booking.CustomerEmail,
			"amount":    req.Amount,
		})
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"paymentId": uuid.UUID(pay.ID.Bytes).String(),
		"status":    db.PaymentStatusRefunded,
	}})
}

// ListByBooking handles GET /api/v1/admin/bookings/{id}/payments.
func (h *Handler) ListByBooking(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Q == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payments unavailable", nil)
		return
	}
	raw := strings.TrimSpace(chi.URLParam(r, "id"))
	parsed, err := uuid.Parse(raw)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid booking id", nil)
		return
	}
	rows, err := h.Q.ListPaymentsByBooking(r.Context(), pgtype.UUID{Bytes: parsed, Valid: true})
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_FETCH_ERROR", err.Error(), nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}
