package route

import "strings"

// excludedDirs match on segment boundaries; excludedPrefixes match as raw
// prefixes so favicon variants such as /favicon-32x32 are covered too.
var (
	excludedDirs     = []string{"/_next", "/api", "/public"}
	excludedPrefixes = []string{"/favicon"}
)

// AuthPages are the public pages an authenticated user is bounced away from.
var AuthPages = []string{"/login", "/signup"}

// Excluded reports whether p bypasses route authorization entirely: framework
// assets, API routes, the favicon, the public asset directory, and any path
// whose last segment has a file extension.
func Excluded(p string) bool {
	p = Clean(p)
	for _, dir := range excludedDirs {
		if p == dir || strings.HasPrefix(p, dir+"/") {
			return true
		}
	}
	for _, prefix := range excludedPrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	last := p[strings.LastIndexByte(p, '/')+1:]
	return strings.Contains(last, ".")
}

// IsAuthPage reports whether p is the login or signup page (or below it).
func IsAuthPage(p string) bool {
	p = Clean(p)
	for _, page := range AuthPages {
		if p == page || strings.HasPrefix(p, page+"/") {
			return true
		}
	}
	return false
}
