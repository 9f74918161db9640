package ratelimit

import "net/http"

// Middleware returns net/http middleware enforcing cfg. Rejected requests
// and failed extractions are answered directly. Admitted requests get the
// verdict headers, and in permissive mode the Result is attached to the
// request context for TakeResult.
func Middleware[K comparable](cfg *Config[K]) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			v := cfg.Check(HTTPRequest(r))
			if v.Response != nil {
				v.Response.Write(w)
				return
			}

			v.ApplyHeaders(w.Header())
			if v.Result != nil {
				r = r.WithContext(WithResult(r.Context(), *v.Result))
			}
			next.ServeHTTP(w, r)
		})
	}
}
