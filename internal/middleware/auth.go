package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"pronto-ballbot/pkg/apierror"
)

// APIKeyAuth accepts requests carrying one of the configured keys, either in
// X-API-Key or as a bearer token. With no keys configured every request is
// refused.
func APIKeyAuth(keys []string) func(http.Handler) http.Handler {
	valid := make([][]byte, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			valid = append(valid, []byte(k))
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(valid) == 0 {
				writeError(w, apierror.ServiceUnavailable("no API keys configured"))
				return
			}

			key := r.Header.Get("X-API-Key")
			if key == "" {
				if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
					key = strings.TrimPrefix(auth, "Bearer ")
				}
			}
			if key == "" {
				writeError(w, apierror.Unauthorized("API key required"))
				return
			}
			if !isValidKey(valid, key) {
				writeError(w, apierror.Unauthorized("invalid API key"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isValidKey(valid [][]byte, key string) bool {
	k := []byte(key)
	for _, v := range valid {
		if subtle.ConstantTimeCompare(v, k) == 1 {
			return true
		}
	}
	return false
}

func writeError(w http.ResponseWriter, err *apierror.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode)
	_, _ = w.Write(err.ToJSON())
}
