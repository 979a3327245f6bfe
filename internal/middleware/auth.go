package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/twojapodobizna/api/internal/auth"
	"github.com/twojapodobizna/api/internal/enum"
)

// RequireAdmin rejects requests whose Bearer token does not match the
// configured admin credential. With no credential configured every request
// is rejected rather than letting the panel run open.
func RequireAdmin(verifier *auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": enum.CodeUnauthorized})
				return
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": enum.CodeUnauthorized})
				return
			}

			if !verifier.Verify(parts[1]) {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": enum.CodeUnauthorized})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
