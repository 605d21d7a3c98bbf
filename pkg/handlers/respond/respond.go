// Package respond writes JSON bodies and maps domain errors to HTTP status
// codes for the admin API.
package respond

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/chris/debt-ledger-bot/pkg/api"
	"github.com/chris/debt-ledger-bot/pkg/apperrors"
	"github.com/chris/debt-ledger-bot/pkg/storage"
	"go.uber.org/zap"
)

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to write response", http.StatusInternalServerError)
	}
}

// StatusFor returns the HTTP status for a domain or storage error.
func StatusFor(err error) int {
	if e, ok := apperrors.As(err); ok {
		switch e.Code {
		case apperrors.CodeValidation:
			return http.StatusBadRequest
		case apperrors.CodeAuthorization:
			return http.StatusForbidden
		case apperrors.CodeNotFound:
			return http.StatusNotFound
		case apperrors.CodeAlreadyResolved, apperrors.CodeConflict:
			return http.StatusConflict
		}
	}
	if errors.Is(err, storage.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// Error writes err as an api.Error. Internal errors are logged and replaced
// with a generic message.
func Error(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := StatusFor(err)
	body := api.Error{Code: "INTERNAL", Message: "internal error"}
	if status == http.StatusInternalServerError {
		logger.Error("request failed", zap.Error(err))
	} else if e, ok := apperrors.As(err); ok {
		body = api.Error{Code: string(e.Code), Message: e.Message}
	} else if errors.Is(err, storage.ErrNotFound) {
		body = api.Error{Code: string(apperrors.CodeNotFound), Message: "not found"}
	}
	JSON(w, status, body)
}

// ParamError is used as the ErrorHandlerFunc for parameter binding failures.
func ParamError(w http.ResponseWriter, _ *http.Request, err error) {
	JSON(w, http.StatusBadRequest, api.Error{Code: string(apperrors.CodeValidation), Message: err.Error()})
}
