package i18n

import (
	"net/http"
	"strings"
)

// Middleware injects a localizer into every request context. The request's
// Accept-Language header is preferred over the configured language.
func Middleware(lang string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			langs := []string{lang}
			if accept := strings.TrimSpace(r.Header.Get("Accept-Language")); accept != "" {
				langs = []string{accept, lang}
			}
			ctx := WithLocalizer(r.Context(), NewLocalizer(langs...))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
