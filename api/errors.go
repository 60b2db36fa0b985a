package api

import (
	"encoding/json"
	"net/http"

	"github.com/burnt-labs/abstraxion-backend/autherr"
)

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error string       `json:"error"`
	Code  autherr.Code `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func mapError(w http.ResponseWriter, err error) {
	writeJSON(w, autherr.StatusOf(err), ErrorResponse{
		Error: err.Error(),
		Code:  autherr.CodeOf(err),
	})
}
