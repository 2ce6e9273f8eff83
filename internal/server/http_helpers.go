package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"guess-the-drop/internal/game"
)

func readJSON(body io.Reader, dest any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeActionError maps engine errors onto HTTP responses. Forbidden is
// reported as not-found so probing a room code reveals nothing.
func writeActionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrNotFound), errors.Is(err, game.ErrForbidden):
		writeError(w, http.StatusNotFound, "not found")
	case game.IsInvalidState(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("action failed error=%v", err)
		writeError(w, http.StatusInternalServerError, "something went wrong")
	}
}
