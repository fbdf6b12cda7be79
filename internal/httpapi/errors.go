package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/MrEthical07/authcore"
)

// Error is the JSON body of every non-2xx response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeForbidden    = "forbidden"
	ErrCodeConflict     = "conflict"
	ErrCodeValidation   = "validation_error"
	ErrCodeRateLimited  = "rate_limited"
	ErrCodeInternal     = "internal_error"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", authcore.TokenType)
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeEngineError maps engine sentinels to responses. Anything unmapped is
// logged and answered with a bare 500.
func writeEngineError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, authcore.ErrDuplicateEmail):
		writeError(w, http.StatusConflict, ErrCodeConflict, "email already registered")
	case errors.Is(err, authcore.ErrInvalidEmail),
		errors.Is(err, authcore.ErrWeakPassword),
		errors.Is(err, authcore.ErrInvalidDisplayName),
		errors.Is(err, authcore.ErrInvalidRole):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
	case errors.Is(err, authcore.ErrLoginRateLimited),
		errors.Is(err, authcore.ErrRegisterRateLimited):
		writeError(w, http.StatusTooManyRequests, ErrCodeRateLimited, "too many attempts")
	case errors.Is(err, authcore.ErrInvalidCredentials):
		writeUnauthorized(w, "invalid credentials")
	case errors.Is(err, authcore.ErrInvalidToken),
		errors.Is(err, authcore.ErrUnauthenticated):
		writeUnauthorized(w, "invalid token")
	case errors.Is(err, authcore.ErrForbidden):
		writeError(w, http.StatusForbidden, ErrCodeForbidden, "forbidden")
	case errors.Is(err, authcore.ErrUserNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "user not found")
	default:
		logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "internal error")
	}
}
