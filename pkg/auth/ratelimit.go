package auth

import (
	"net"
	"net/http"

	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/api"
	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/limiter"
)

// RateLimitMiddleware enforces per-actor rate limiting at the HTTP layer.
// The actor is the authenticated principal, or the remote IP without one.
// On rate limit exceeded, it returns 429 with a Retry-After header.
func RateLimitMiddleware(store limiter.Store, policy limiter.Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if store == nil {
				next.ServeHTTP(w, r)
				return
			}

			actorID := "ip:" + remoteIP(r)
			if principal, err := GetPrincipal(r.Context()); err == nil {
				actorID = "principal:" + principal.GetID()
			}

			allowed, err := store.Allow(r.Context(), actorID, policy, 1)
			if err != nil {
				// Fail open on limiter errors to avoid blocking all traffic
				Logger(r.Context(), nil).Warn("rate limiter unavailable", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			if !allowed {
				api.WriteTooManyRequests(w, r, policy.RetryAfter())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
