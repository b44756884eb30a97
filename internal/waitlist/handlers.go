package waitlist

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sagewood/backend-retreats/internal/common"
)

// Handler exposes the public join endpoint and the admin queue view.
type Handler struct {
	Svc *Service
}

type joinRequest struct {
	RoomID string `json:"roomId"`
	Email  string `json:"email"`
}

// Join handles POST /api/v1/waitlist.
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "waitlist service not configured", nil)
		return
	}
	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	roomID, err := uuid.Parse(strings.TrimSpace(req.RoomID))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid room id", nil)
		return
	}
	entry, err := h.Svc.Join(r.Context(), roomID, req.Email)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": entry})
}

// ListByRetreat handles GET /api/v1/admin/retreats/{id}/waitlist.
func (h *Handler) ListByRetreat(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "waitlist service not configured", nil)
		return
	}
	retreatID, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "id")))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid retreat id", nil)
		return
	}
	rows, err := h.Svc.ListByRetreat(r.Context(), retreatID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusInternalServerError
		}
		common.JSONError(w, status, appErr.Code, appErr.Message, appErr.Details)
		return
	}
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
}
