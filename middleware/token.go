package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/uimp/portalguard"
)

type identityContextKey struct{}

// IdentityFromContext returns the identity stored by [Edge] or
// [RequireIdentity] for an authorized request.
func IdentityFromContext(ctx context.Context) (portalguard.Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(portalguard.Identity)
	return id, ok
}

func withIdentity(ctx context.Context, id portalguard.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// TokenFromRequest returns the session token carried by r: the named cookie
// first, then an Authorization bearer header.
func TokenFromRequest(r *http.Request, cookieName string) string {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	token, _ := bearerToken(r.Header.Get("Authorization"))
	return token
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

// stripIdentityHeaders removes caller-supplied identity headers so that only
// values set after verification reach the handler.
func stripIdentityHeaders(h http.Header) {
	h.Del(portalguard.HeaderUserID)
	h.Del(portalguard.HeaderUserRole)
	h.Del(portalguard.HeaderUserEmail)
}
