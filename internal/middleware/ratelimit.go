package middleware

import (
	"net/http"

	"lootcase-api/internal/ratelimit"
	"lootcase-api/pkg/apierror"
	"lootcase-api/pkg/response"
)

// IPRateLimit applies a coarse per-address budget in front of every route.
// Pass a fail-open gate.
func IPRateLimit(gate *ratelimit.Gate, rule ratelimit.Rule) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := GetClientIP(r.Context())
			if ip == "" {
				ip = remoteHost(r.RemoteAddr)
			}

			if !gate.Admit(r.Context(), ip, rule) {
				response.Error(w, apierror.TooManyRequests("", rule.RetryAfterSeconds()))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
