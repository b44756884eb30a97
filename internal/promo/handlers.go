package promo

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/sagewood/backend-retreats/internal/common"
	"github.com/sagewood/backend-retreats/internal/db"
	"github.com/sagewood/backend-retreats/internal/obs"
	"github.com/sagewood/backend-retreats/internal/pricing"
)

// CatalogQuerier resolves the room and retreat a promo code is validated against.
type CatalogQuerier interface {
	GetRoomByID(ctx context.Context, id pgtype.UUID) (db.Room, error)
	GetRetreatByID(ctx context.Context, id pgtype.UUID) (db.Retreat, error)
	ListPromos(ctx context.Context, limit, offset int32) ([]db.PromoCode, error)
	CreatePromo(ctx context.Context, arg db.CreatePromoParams) (db.PromoCode, error)
	UpdatePromo(ctx context.Context, arg db.UpdatePromoParams) (db.PromoCode, error)
}

// Handler exposes the public validation endpoint and administrative CRUD.
type Handler struct {
	Q   CatalogQuerier
	Svc *Service
}

type validateRequest struct {
	Code   string `json:"code"`
	Email  string `json:"email"`
	RoomID string `json:"roomId"`
}

type validateResponse struct {
	Valid                   bool   `json:"valid"`
	DiscountAmount          int64  `json:"discountAmount"`
	Source                  string `json:"source"`
	PromoDiscountAmount     int64  `json:"promoDiscountAmount"`
	EarlyBirdDiscountAmount int64  `json:"earlyBirdDiscountAmount"`
	IsEarlyBirdEligible     bool   `json:"isEarlyBirdEligible"`
	Reason                  string `json:"reason,omitempty"`
}

// Validate evaluates a promo code for a room without persisting anything.
// Eligibility failures return 200 with valid=false so the booking form can
// surface the reason inline.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	if h.Q == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "promo service not configured", nil)
		return
	}
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	roomID, err := parsePgUUID(req.RoomID)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid room id", nil)
		return
	}
	room, err := h.Q.GetRoomByID(r.Context(), roomID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "room not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load room", nil)
		return
	}
	retreat, err := h.Q.GetRetreatByID(r.Context(), room.RetreatID)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load retreat", nil)
		return
	}
	offer := pricing.RoomOffer{
		RegularPrice:     room.RegularPrice,
		EarlyBirdPrice:   room.EarlyBirdPrice,
		EarlyBirdEnabled: room.EarlyBirdEnabled,
		DepositPrice:     room.DepositPrice,
	}
	result, err := h.Svc.Evaluate(r.Context(), req.Code, req.Email, uuid.UUID(retreat.ID.Bytes), offer, retreat.StartDate.Time)
	if err != nil {
		reason := eligibilityReason(err)
		if reason == "" {
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to validate promo code", nil)
			return
		}
		if obs.PromoValidationsTotal != nil {
			obs.PromoValidationsTotal.WithLabelValues(reason).Inc()
		}
		common.JSON(w, http.StatusOK, map[string]any{"data": toValidateResponse(result, reason)})
		return
	}
	if obs.PromoValidationsTotal != nil {
		obs.PromoValidationsTotal.WithLabelValues("valid").Inc()
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": toValidateResponse(result, "")})
}

func toValidateResponse(result pricing.PromoValidationResult, reason string) validateResponse {
	return validateResponse{
		Valid:                   result.Valid,
		DiscountAmount:          result.DiscountAmount,
		Source:                  result.Source.String(),
		PromoDiscountAmount:     result.PromoDiscountAmount,
		EarlyBirdDiscountAmount: result.EarlyBirdDiscountAmount,
		IsEarlyBirdEligible:     result.IsEarlyBirdEligible,
		Reason:                  reason,
	}
}

// eligibilityReason maps expected validation failures to wire reasons. It
// returns "" for unexpected errors so the handler can respond with 500.
func eligibilityReason(err error) string {
	switch {
	case errors.Is(err, ErrNotEligible):
		return "not_eligible"
	case errors.Is(err, ErrInactive):
		return "not_active"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrUsageLimitReached):
		return "usage_limit_reached"
	case errors.Is(err, ErrPerEmailLimitReached):
		return "per_email_limit_reached"
	case errors.Is(err, ErrWrongRetreat):
		return "wrong_retreat"
	default:
		return ""
	}
}

type promoPayload struct {
	Code          string     `json:"code"`
	Kind          string     `json:"kind"`
	Value         int64      `json:"value"`
	PercentBps    *int32     `json:"percentBps"`
	UsageLimit    *int32     `json:"usageLimit"`
	PerEmailLimit *int32     `json:"perEmailLimit"`
	ValidFrom     *time.Time `json:"validFrom"`
	ValidTo       *time.Time `json:"validTo"`
	RetreatIDs    []string   `json:"retreatIds"`
}

// List returns promo codes for the admin dashboard.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Q == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "promo queries not configured", nil)
		return
	}
	page, perPage := common.ParsePagination(r, 50)
	promos, err := h.Q.ListPromos(r.Context(), int32(perPage), int32((page-1)*perPage))
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list promo codes", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": promos})
}

// Create inserts a new promo code.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Q == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "promo queries not configured", nil)
		return
	}
	var payload promoPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	params, err := buildCreateParams(payload)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	row, err := h.Q.CreatePromo(r.Context(), params)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			common.JSONError(w, http.StatusConflict, "CONFLICT", "promo code already exists", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to create promo code", nil)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": row})
}

// Update mutates an existing promo code identified by code.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	if h.Q == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "promo queries not configured", nil)
		return
	}
	code := strings.TrimSpace(chi.URLParam(r, "code"))
	if code == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "code is required", nil)
		return
	}
	var payload promoPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	payload.Code = code
	params, err := buildCreateParams(payload)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	row, err := h.Q.UpdatePromo(r.Context(), db.UpdatePromoParams(params))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "promo code not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to update promo code", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": row})
}

func buildCreateParams(payload promoPayload) (db.CreatePromoParams, error) {
	code := strings.ToUpper(strings.TrimSpace(payload.Code))
	if code == "" {
		return db.CreatePromoParams{}, errors.New("code is required")
	}
	kind := strings.TrimSpace(payload.Kind)
	if kind == "" {
		kind = db.PromoKindFixedAmount
	}
	switch kind {
	case db.PromoKindFixedAmount, db.PromoKindPercent:
	default:
		return db.CreatePromoParams{}, errors.New("invalid kind")
	}
	if kind == db.PromoKindFixedAmount && payload.Value <= 0 {
		return db.CreatePromoParams{}, errors.New("value must be positive")
	}
	if kind == db.PromoKindPercent && (payload.PercentBps == nil || *payload.PercentBps <= 0 || *payload.PercentBps > 10000) {
		return db.CreatePromoParams{}, errors.New("percentBps must be between 1 and 10000")
	}
	retreatIDs, err := toUUIDArray(payload.RetreatIDs)
	if err != nil {
		return db.CreatePromoParams{}, err
	}
	return db.CreatePromoParams{
		Code:          code,
		Kind:          kind,
		Value:         payload.Value,
		PercentBps:    int32ToNullable(payload.PercentBps),
		UsageLimit:    int32ToNullable(payload.UsageLimit),
		PerEmailLimit: int32ToNullable(payload.PerEmailLimit),
		ValidFrom:     timeToNullable(payload.ValidFrom),
		ValidTo:       timeToNullable(payload.ValidTo),
		RetreatIds:    retreatIDs,
	}, nil
}

func toUUIDArray(values []string) ([]pgtype.UUID, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make([]pgtype.UUID, 0, len(values))
	for _, raw := range values {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		parsed, err := parsePgUUID(trimmed)
		if err != nil {
			return nil, err
		}
		out = append(out, parsed)
	}
	return out, nil
}

func int32ToNullable(v *int32) pgtype.Int4 {
	if v == nil {
		return pgtype.Int4{}
	}
	return pgtype.Int4{Int32: *v, Valid: true}
}

func timeToNullable(v *time.Time) pgtype.Timestamptz {
	if v == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *v, Valid: true}
}

func parsePgUUID(value string) (pgtype.UUID, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return pgtype.UUID{}, err
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}, nil
}
