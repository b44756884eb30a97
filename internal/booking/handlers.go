package booking

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/sagewood/backend-retreats/internal/common"
	"github.com/sagewood/backend-retreats/internal/obs"
)

func bookingResult(err error) string {
	if err == nil {
		return "created"
	}
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		return strings.ToLower(appErr.Code)
	}
	return "error"
}

// Handler exposes the public quote/checkout endpoints and admin booking management.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, v *validator.Validate) *Handler {
	if v == nil {
		v = validator.New()
	}
	return &Handler{Svc: svc, Validate: v}
}

// Quote handles POST /api/v1/bookings/quote.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "booking service not configured", nil)
		return
	}
	var in QuoteInput
	if !h.decode(w, r, &in) {
		return
	}
	started := time.Now()
	out, err := h.Svc.Quote(r.Context(), in)
	if obs.QuoteLatency != nil {
		obs.QuoteLatency.Observe(float64(time.Since(started).Milliseconds()))
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}

// Create handles POST /api/v1/bookings.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "booking service not configured", nil)
		return
	}
	var in CreateInput
	if !h.decode(w, r, &in) {
		return
	}
	out, err := h.Svc.Create(r.Context(), in)
	if obs.BookingsTotal != nil {
		obs.BookingsTotal.WithLabelValues(bookingResult(err)).Inc()
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": out})
}

// Get handles GET /api/v1/admin/bookings/{id} including the installment plan.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil || h.Svc.Q == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "booking service not configured", nil)
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	booking, err := h.Svc.Q.GetBookingByID(r.Context(), pgtype.UUID{Bytes: id, Valid: true})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "booking not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load booking", nil)
		return
	}
	installments, err := h.Svc.Q.ListInstallmentsByBooking(r.Context(), booking.ID)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load installments", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"booking":      booking,
		"installments": installments,
	}})
}

// List handles GET /api/v1/admin/bookings.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil || h.Svc.Q == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "booking service not configured", nil)
		return
	}
	page, perPage := common.ParsePagination(r, 50)
	rows, err := h.Svc.Q.ListBookings(r.Context(), int32(perPage), int32((page-1)*perPage))
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list bookings", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

// Cancel handles POST /api/v1/admin/bookings/{id}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "booking service not configured", nil)
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	booking, err := h.Svc.Cancel(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"bookingId": uuid.UUID(booking.ID.Bytes).String(),
		"status":    booking.Status,
	}})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	parsed, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "id")))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid booking id", nil)
		return uuid.UUID{}, false
	}
	return parsed, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return false
	}
	if err := h.Validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		details := any(nil)
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
			details = map[string]any{"fields": fields}
		}
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "validation failed", details)
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusInternalServerError
		}
		code := appErr.Code
		if code == "" {
			code = "INTERNAL"
		}
		details := appErr.Details
		if code == "SOLD_OUT" {
			details = map[string]any{"waitlistAvailable": true}
		}
		common.JSONError(w, status, code, appErr.Message, details)
		return
	}
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
}
