package utils

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// ErrorBody is the JSON shape of every API error.
type ErrorBody struct {
	Error string `json:"error"`
}

// RespondJSON writes payload as JSON. Encoding failures go to logger, which may be nil.
func RespondJSON(w http.ResponseWriter, logger *zap.Logger, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil && logger != nil {
		logger.Warn("encode response", zap.Int("status", status), zap.Error(err))
	}
}

// RespondError writes an ErrorBody with the given status.
func RespondError(w http.ResponseWriter, logger *zap.Logger, status int, message string) {
	RespondJSON(w, logger, status, ErrorBody{Error: message})
}
