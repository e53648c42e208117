package middleware

import (
	"net"
	"net/http"

	"github.com/MrEthical07/tokenguard"
)

// ClientIP stores the remote address host on the request context. Mount it
// after chi's RealIP when running behind a trusted proxy.
func ClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if host != "" {
			r = r.WithContext(tokenguard.WithClientIP(r.Context(), host))
		}
		next.ServeHTTP(w, r)
	})
}
