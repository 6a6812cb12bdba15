package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const apiKeyHeader = "X-API-Key"

// requestAPIKey extracts the key from a bearer token or the X-API-Key header.
func requestAPIKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.Header.Get(apiKeyHeader))
}

// requireAPIKey is middleware that checks the request key against the
// configured hash. It passes everything through when no key is configured.
func (h *Handler) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.keyHash == nil {
			next.ServeHTTP(w, r)
			return
		}
		key := requestAPIKey(r)
		if key == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized", Details: "api key missing"})
			return
		}
		if err := bcrypt.CompareHashAndPassword(h.keyHash, []byte(key)); err != nil {
			slog.Warn("api key mismatch", "remote", r.RemoteAddr, "path", r.URL.Path)
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized", Details: "invalid api key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
