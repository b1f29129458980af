package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/malwarebo/reserva/resilience"
	"github.com/malwarebo/reserva/utils"
)

type ErrorResponse struct {
	Error          string `json:"error"`
	CurrentVersion int64  `json:"current_version,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// writeError maps the mutation-safety taxonomy onto HTTP. Conflict-class
// errors carry enough context (current version, replay detection) for the
// caller to decide whether to re-fetch, retry or re-authenticate.
func writeError(w http.ResponseWriter, err error) {
	var conflict *utils.VersionConflictError
	if errors.As(err, &conflict) {
		w.Header().Set("ETag", etagForVersion(conflict.CurrentVersion))
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:          "version conflict",
			CurrentVersion: conflict.CurrentVersion,
		})
		return
	}

	if errors.Is(err, resilience.ErrCircuitOpen) {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "upstream temporarily unavailable"})
		return
	}

	writeJSON(w, utils.GetHTTPStatusFromError(err), ErrorResponse{Error: err.Error()})
}
