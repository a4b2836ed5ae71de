package http

import (
	"encoding/json"
	"net/http"

	domain "github.com/oshokin/dynamic-timers/internal/domain/timer"
)

// errorResponse is the JSON body of every non-2xx reply.
type errorResponse struct {
	// Error is a human-readable description of the failure.
	Error string `json:"error"`
}

// writeJSON renders a JSON body with the given status code.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	//nolint:errcheck // The response writer failing leaves us nothing to do.
	json.NewEncoder(w).Encode(body)
}

// writeError renders an error body with the given status code.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeDomainError maps domain errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case domain.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case domain.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	case domain.IsDuplicateName(err):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
