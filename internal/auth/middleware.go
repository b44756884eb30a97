package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/sagewood/backend-retreats/internal/common"
)

var errNoToken = errors.New("auth: token missing")

// Middleware guards the admin route group.
type Middleware struct {
	Service *Service
}

// RequireAdmin rejects the request unless a valid admin bearer token is
// present, and stores the admin ID on the context for handlers.
func (m Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		adminID, err := m.adminFromRequest(r)
		if err != nil {
			writeAuthError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(common.WithAdminID(r.Context(), adminID)))
	})
}

func (m Middleware) adminFromRequest(r *http.Request) (string, error) {
	if m.Service == nil {
		return "", errors.New("auth: service not configured")
	}
	token := bearerToken(r.Header.Get("Authorization"))
	if token == "" {
		return "", errNoToken
	}
	return m.Service.ParseAccessToken(token)
}

func writeAuthError(w http.ResponseWriter, err error) {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusUnauthorized
		}
		common.JSONError(w, status, appErr.Code, appErr.Message, appErr.Details)
		return
	}
	common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
