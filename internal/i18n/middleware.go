package i18n

import "net/http"

// Middleware picks the language of every request: the "lang" query
// parameter first, then Accept-Language, then fallback. The localizer is
// stored in the request context.
func Middleware(fallback string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var langs []string
			if q := r.URL.Query().Get("lang"); q != "" {
				langs = append(langs, q)
			}
			if al := r.Header.Get("Accept-Language"); al != "" {
				langs = append(langs, al)
			}
			langs = append(langs, fallback)
			ctx := WithLocalizer(r.Context(), NewLocalizer(langs...))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
