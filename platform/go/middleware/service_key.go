package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/coffeevibes888/rentflowhq-sub007/platform/go/problem"
)

// ServiceKeyHeader carries the shared key the main platform presents on admin calls.
const ServiceKeyHeader = "X-Service-Key"

// RequireServiceKey guards the admin API with a shared-key check.
// Comparison is constant time so the key cannot be probed byte by byte.
func RequireServiceKey(key string) func(http.Handler) http.Handler {
	if key == "" {
		panic("service key is required")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get(ServiceKeyHeader)
			if subtle.ConstantTimeCompare([]byte(presented), []byte(key)) != 1 {
				problem.Write(w, problem.Details{
					Type:   "https://rentflowhq.com/problems/unauthorized",
					Title:  "Unauthorized",
					Status: http.StatusUnauthorized,
					Detail: "missing or invalid service key",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
