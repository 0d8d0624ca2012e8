package handler

import (
	"net/http"
	"strings"
)

// BearerAuth rejects requests without a valid "Authorization: Bearer <token>" header.
// It authenticates the bridge process only; message sender ids are still taken as given.
func BearerAuth(v TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				respondError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			if _, err := v.Validate(strings.TrimSpace(token)); err != nil {
				respondError(w, http.StatusUnauthorized, "invalid bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
