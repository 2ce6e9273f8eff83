package server

import (
	"net/http"

	"guess-the-drop/internal/db"
)

// The session cookie carries an opaque id; the OAuth flow that creates the
// underlying session_auths row lives outside this service.
const sessionCookieName = "gtd_session"

// currentUser resolves the request's session cookie to an authenticated
// user. A missing or stale session yields (nil, false).
func (s *Server) currentUser(r *http.Request) (*db.User, bool) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil, false
	}
	user, ok, err := s.store.FindUserBySession(r.Context(), cookie.Value)
	if err != nil || !ok {
		return nil, false
	}
	return user, true
}

// requireUser is currentUser plus the 401 response when absent.
func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (*db.User, bool) {
	user, ok := s.currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "sign in required")
		return nil, false
	}
	return user, true
}
