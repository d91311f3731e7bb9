package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/uimp/portalguard"
	"github.com/uimp/portalguard/role"
)

// RequireIdentity returns middleware for API handlers. A request without a
// valid token gets 401; otherwise the identity is stored in the context.
func RequireIdentity(engine *portalguard.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			stripIdentityHeaders(r.Header)
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			v := engine.Verify(r.Context(), TokenFromRequest(r, engine.Cookie().Name))
			if !v.Valid {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), v.User)))
		})
	}
}

// RequireRole is RequireIdentity restricted to allowed roles. A valid token
// for any other role gets 403.
func RequireRole(engine *portalguard.Engine, allowed role.Set) func(http.Handler) http.Handler {
	requireIdentity := RequireIdentity(engine)
	return func(next http.Handler) http.Handler {
		return requireIdentity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, _ := IdentityFromContext(r.Context())
			if !allowed.Has(id.Role) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

// ClientIP returns middleware that attaches the caller address to the request
// context with portalguard.WithClientIP. When trustProxy is set, the first
// X-Forwarded-For entry wins over RemoteAddr.
func ClientIP(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := remoteIP(r.RemoteAddr)
			if trustProxy {
				if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
					first, _, _ := strings.Cut(fwd, ",")
					if first = strings.TrimSpace(first); first != "" {
						ip = first
					}
				}
			}
			next.ServeHTTP(w, r.WithContext(portalguard.WithClientIP(r.Context(), ip)))
		})
	}
}

func remoteIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
