// Package httpapi exposes the five HTTP endpoints spec.md §5 names
// (enqueue/webhook/finish/health/task lookup), grounded on the teacher's
// internal/delivery/server/http router and handler conventions.
package httpapi

import (
	"encoding/json"
	"net/http"
)

// errorResponse matches the shape the teacher's writeJSONError produces.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON serialises payload as JSON and writes it with the given status.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}
