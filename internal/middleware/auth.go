package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/rs/zerolog/log"
)

// AdminTokenHeader carries the shared admin token.
const AdminTokenHeader = "X-Admin-Token"

// RequireAdmin gates the administrative endpoints behind a shared token.
// An empty configured token disables the endpoints entirely; the
// response is the same 404 either way so the surface stays dark.
func RequireAdmin(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get(AdminTokenHeader)
			if token == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				log.Warn().
					Str("path", r.URL.Path).
					Str("client_ip", GetClientIP(r)).
					Msg("admin endpoint denied")
				http.NotFound(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
