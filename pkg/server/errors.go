package server

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Sentinel errors for the HTTP API.
var (
	// ErrInvalidPayload is returned when a request body is not valid JSON.
	ErrInvalidPayload = errors.New("server: invalid JSON payload")

	// ErrPayloadTooLarge is returned when a request body exceeds the
	// transport's maximum message size.
	ErrPayloadTooLarge = errors.New("server: payload too large")

	// ErrInvalidSessionID is returned when a session id is not a uint32.
	ErrInvalidSessionID = errors.New("server: invalid session id")

	// ErrNoState is returned when no shared state has been published.
	ErrNoState = errors.New("server: no state published")
)

// apiError is the JSON body of every API error response.
type apiError struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, apiError{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
