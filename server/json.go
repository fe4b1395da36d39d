package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/jrsteele09/tutorhub-session/auth"
)

const (
	contentTypeJSON = "application/json"
	maxBodyBytes    = 1 << 20
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, auth.Envelope{Success: false, Message: message})
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
}
