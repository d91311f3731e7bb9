package portalguard

import (
	"net/url"
	"strings"

	"github.com/uimp/portalguard/role"
	"github.com/uimp/portalguard/route"
)

// LoginPath is the login page.
const LoginPath = "/login"

// RedirectParam is the login query parameter carrying the page to restore.
const RedirectParam = "redirect"

// LoginURL returns the login page URL that restores path after login.
func LoginURL(path string) string {
	return LoginPath + "?" + RedirectParam + "=" + url.QueryEscape(route.Clean(path))
}

// PostLoginTarget returns where a user holding r goes after logging in.
//
// raw is the decoded redirect parameter. It is honoured only when it is a
// same-origin absolute path that is not an auth page. Anything else, including
// scheme-relative URLs and backslash tricks, falls back to r's dashboard.
func PostLoginTarget(raw string, r role.Role) string {
	u, ok := parseLocalPath(raw)
	if !ok {
		return role.Dashboard(r)
	}
	p := route.Clean(u.Path)
	if route.IsAuthPage(p) || route.Excluded(p) {
		return role.Dashboard(r)
	}
	if u.RawQuery != "" {
		return p + "?" + u.RawQuery
	}
	return p
}

func parseLocalPath(raw string) (*url.URL, bool) {
	if raw == "" || raw[0] != '/' {
		return nil, false
	}
	if len(raw) > 1 && (raw[1] == '/' || raw[1] == '\\') {
		return nil, false
	}
	if strings.ContainsAny(raw, "\\\r\n\t") {
		return nil, false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return nil, false
	}
	// Escapes decode into u.Path, so check it again: browsers read "/\" as "//".
	if strings.HasPrefix(u.Path, "//") || strings.ContainsAny(u.Path, "\\\r\n\t") {
		return nil, false
	}
	return u, true
}
