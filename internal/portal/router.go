package portal

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/uimp/portalguard"
	"github.com/uimp/portalguard/middleware"
	"github.com/uimp/portalguard/role"
)

// Deps are the collaborators of the router.
type Deps struct {
	Engine *portalguard.Engine
	Logger *slog.Logger
	// Metrics serves /metrics when set. Only ADMIN sessions and bearers of
	// MetricsToken may read it.
	Metrics      http.Handler
	MetricsToken string
	// Checks are extra readiness probes run by /healthz, keyed by name.
	Checks map[string]func(context.Context) error
	// TrustProxy makes the client address come from X-Forwarded-For.
	TrustProxy bool
}

// NewRouter returns the gateway handler.
func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	h := &handlers{engine: d.Engine, logger: d.Logger, checks: d.Checks}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.ClientIP(d.TrustProxy))
	r.Use(requestLogger(d.Logger))
	r.Use(chimw.Recoverer)

	r.Get("/healthz", h.health)
	if d.Metrics != nil {
		r.With(metricsAccess(d.Engine, d.MetricsToken)).Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(chimw.NoCache)
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", h.login)
			r.Post("/logout", h.logout)
			r.Get("/me", h.me)
			r.With(middleware.RequireIdentity(d.Engine)).Post("/logout-all", h.logoutAll)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Edge(d.Engine))
		r.Get("/*", h.page)
	})

	return r
}

func metricsAccess(engine *portalguard.Engine, token string) func(http.Handler) http.Handler {
	adminOnly := middleware.RequireRole(engine, role.Of(role.Admin))
	return func(next http.Handler) http.Handler {
		admin := adminOnly(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token != "" {
				got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
				if ok && subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1 {
					next.ServeHTTP(w, r)
					return
				}
			}
			admin.ServeHTTP(w, r)
		})
	}
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.LogAttrs(r.Context(), slog.LevelInfo, "http request",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Int("status", ww.Status()),
					slog.Int("bytes", ww.BytesWritten()),
					slog.Duration("duration", time.Since(start)),
					slog.String("request_id", chimw.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
