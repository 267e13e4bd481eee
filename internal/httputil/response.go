package httputil

import (
	"encoding/json"
	"net/http"
)

type ErrorBody struct {
	Error string `json:"error"`
}

// FailureBody is the envelope of the session gate endpoints: a success flag
// plus an optional reason.
type FailureBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorBody{Error: message})
}

func WriteFailure(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, FailureBody{Success: false, Error: message})
}

// DecodeJSON reads a JSON request body capped at maxBytes.
func DecodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	return json.NewDecoder(r.Body).Decode(v)
}
