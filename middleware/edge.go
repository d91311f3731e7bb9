package middleware

import (
	"net/http"

	"github.com/uimp/portalguard"
	"github.com/uimp/portalguard/route"
)

// Edge returns middleware that authorizes every navigable request with
// engine.Decide.
//
// Excluded paths (assets, /api, files with an extension) pass through
// untouched. A redirect decision answers 307 with the decision's Location.
// An authorized allow copies the identity into the x-user-* response and
// request headers and into the request context.
func Edge(engine *portalguard.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if route.Excluded(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			stripIdentityHeaders(r.Header)

			if engine == nil {
				http.Redirect(w, r, portalguard.LoginURL(r.URL.Path), http.StatusTemporaryRedirect)
				return
			}

			token := TokenFromRequest(r, engine.Cookie().Name)
			d := engine.Decide(r.Context(), r.URL.Path, token)
			if !d.Allowed() {
				w.Header().Set("Cache-Control", "no-store")
				http.Redirect(w, r, d.Location, http.StatusTemporaryRedirect)
				return
			}

			if d.Identity != nil {
				for k, v := range d.Headers() {
					w.Header()[k] = v
					r.Header[k] = v
				}
				r = r.WithContext(withIdentity(r.Context(), *d.Identity))
			}
			next.ServeHTTP(w, r)
		})
	}
}
