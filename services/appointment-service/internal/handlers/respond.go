package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/clinicbook/clinicbook/services/appointment-service/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps domain error kinds to HTTP statuses. Internal errors are
// logged with detail but reported to the client without it.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		http.Error(w, err.Error(), http.StatusNotFound)
	case apperr.KindConflict:
		http.Error(w, err.Error(), http.StatusConflict)
	case apperr.KindValidation:
		http.Error(w, err.Error(), http.StatusBadRequest)
	case apperr.KindUpstream:
		logger.Error("upstream dependency failed", "err", err)
		http.Error(w, "upstream dependency failed", http.StatusBadGateway)
	default:
		logger.Error("request failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
