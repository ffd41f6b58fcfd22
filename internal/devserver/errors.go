package devserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	logctx "github.com/pribylovaa/go-workconnect/internal/pkg/log"
)

// toHTTP маппит ошибку сервиса в HTTP-статус и тело в формате DRF:
//   - FieldErrors -> 400 {"field": ["..."]};
//   - ErrEmailTaken -> 400 {"email": ["..."]};
//   - ErrInvalidCredentials -> 400 {"non_field_errors": ["..."]};
//   - ErrNoCredentials -> 401 {"detail": "..."};
//   - ErrInvalidToken/Expired/Revoked -> 401 {"detail": "...", "code": "token_not_valid"};
//   - errBadJSON -> 400 {"detail": "..."};
//   - прочее -> 500 без деталей.
func toHTTP(err error) (int, any) {
	var fe FieldErrors
	switch {
	case errors.As(err, &fe):
		return http.StatusBadRequest, fe
	case errors.Is(err, ErrEmailTaken):
		return http.StatusBadRequest, FieldErrors{"email": {"user with this email already exists."}}
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusBadRequest, FieldErrors{"non_field_errors": {"Invalid credentials"}}
	case errors.Is(err, ErrNoCredentials):
		return http.StatusUnauthorized, map[string]string{"detail": "Authentication credentials were not provided."}
	case errors.Is(err, ErrTokenExpired):
		return http.StatusUnauthorized, map[string]string{"detail": "Token is expired", "code": "token_not_valid"}
	case errors.Is(err, ErrTokenRevoked):
		return http.StatusUnauthorized, map[string]string{"detail": "Token is blacklisted", "code": "token_not_valid"}
	case errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized, map[string]string{"detail": "Token is invalid", "code": "token_not_valid"}
	case errors.Is(err, errBadJSON):
		return http.StatusBadRequest, map[string]string{"detail": "JSON parse error"}
	default:
		return http.StatusInternalServerError, map[string]string{"detail": "A server error occurred."}
	}
}

// writeError пишет ошибку; 5xx дополнительно логируются с причиной.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := toHTTP(err)

	if status >= http.StatusInternalServerError {
		logctx.From(r.Context()).Error("handler_failed", slog.String("err", err.Error()))
	}

	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}
