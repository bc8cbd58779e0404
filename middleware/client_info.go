package middleware

import (
	"net"
	"net/http"

	phoneAuth "github.com/MrEthical07/phoneAuth"
)

// ClientInfo copies the client address and User-Agent into the request
// context for the engine's throttles and audit trail. Put it after a
// RealIP-style middleware when running behind a proxy.
func ClientInfo() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if ip := remoteIP(r.RemoteAddr); ip != "" {
				ctx = phoneAuth.WithClientIP(ctx, ip)
			}
			if ua := r.UserAgent(); ua != "" {
				ctx = phoneAuth.WithUserAgent(ctx, ua)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func remoteIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
