package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// requireAuth wraps a handler with bearer-token checking. The comparison is
// constant-time, and the 401 body never says whether the header or the token
// was wrong beyond a stable discriminator.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found {
			writeError(w, http.StatusUnauthorized, "unauthorized: missing_or_malformed_header")
			return
		}
		if s.config.Token == "" ||
			subtle.ConstantTimeCompare([]byte(token), []byte(s.config.Token)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized: invalid_token")
			return
		}
		next(w, r)
	}
}
