package middleware

import (
	"crypto/sha256"
	"net/http"
	"sync"

	log "github.com/sirupsen/logrus"

	"lootcase-api/pkg/apierror"
	"lootcase-api/pkg/keyhash"
	"lootcase-api/pkg/response"
)

// AdminKeyHeader carries the admin login key.
const AdminKeyHeader = "X-Login-Key"

// AdminAuth guards admin routes with a login key checked against an
// argon2id hash. An empty hash disables the admin routes entirely.
// Keys that verified once are remembered by SHA-256 digest.
func AdminAuth(encodedHash string) func(http.Handler) http.Handler {
	var verified sync.Map

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if encodedHash == "" {
				response.Error(w, apierror.Forbidden("Admin access is disabled"))
				return
			}

			key := r.Header.Get(AdminKeyHeader)
			if key == "" {
				response.Error(w, apierror.Unauthorized("Admin login key required"))
				return
			}

			digest := sha256.Sum256([]byte(key))
			if _, ok := verified.Load(digest); ok {
				next.ServeHTTP(w, r)
				return
			}

			ok, err := keyhash.Verify(key, encodedHash)
			if err != nil {
				log.WithField("component", "admin").WithError(err).Error("Admin key hash is malformed")
				response.Error(w, apierror.InternalError(""))
				return
			}
			if !ok {
				log.WithFields(log.Fields{
					"component": "admin",
					"event":     "security",
					"client_ip": GetClientIP(r.Context()),
				}).Warn("Invalid admin login key")
				response.Error(w, apierror.Unauthorized("Invalid admin login key"))
				return
			}

			verified.Store(digest, struct{}{})
			next.ServeHTTP(w, r)
		})
	}
}
