package portal

import (
	"context"
	"html/template"
	"net/http"

	"github.com/uimp/portalguard/middleware"
	"github.com/uimp/portalguard/route"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!doctype html>
<html><head><title>UIMP {{.Path}}</title></head>
<body data-path="{{.Path}}">
{{if .User}}<p>Signed in as {{.User.Email}} ({{.User.Role}})</p>{{end}}
<main>{{.Path}}</main>
</body></html>
`))

// page stands in for the application's page tree. Only requests the edge
// allowed reach it. Static assets are not served here.
func (h *handlers) page(w http.ResponseWriter, r *http.Request) {
	if route.Excluded(r.URL.Path) {
		http.NotFound(w, r)
		return
	}
	data := struct {
		Path string
		User any
	}{Path: r.URL.Path}
	if id, ok := middleware.IdentityFromContext(r.Context()); ok {
		data.User = id
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplate.Execute(w, data); err != nil {
		h.logger.Warn("render page", "path", r.URL.Path, "error", err)
	}
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	status := map[string]string{}
	code := http.StatusOK
	checks := map[string]func(context.Context) error{"sessions": h.engine.Ping}
	for name, check := range h.checks {
		checks[name] = check
	}
	for name, check := range checks {
		if err := check(ctx); err != nil {
			h.logger.WarnContext(ctx, "health check failed", "check", name, "error", err)
			status[name] = "unavailable"
			code = http.StatusServiceUnavailable
			continue
		}
		status[name] = "ok"
	}
	writeJSON(w, code, status)
}
