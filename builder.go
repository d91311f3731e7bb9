package portalguard

import (
	"errors"
	"io"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/uimp/portalguard/internal/audit"
	"github.com/uimp/portalguard/internal/rate"
	"github.com/uimp/portalguard/jwt"
	"github.com/uimp/portalguard/password"
	"github.com/uimp/portalguard/route"
	"github.com/uimp/portalguard/session"
)

// Builder assembles an [Engine]. A Builder is single-use.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	routes *route.Table
	logger *slog.Logger

	userProvider UserProvider
	auditSink    AuditSink

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client used for sessions and login throttling.
// Without one, the engine can still decide routes in ModeJWTOnly but cannot
// log users in or out.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithRoutes sets the compiled route table. The default is [route.Default].
func (b *Builder) WithRoutes(t *route.Table) *Builder {
	b.routes = t
	return b
}

// WithUserProvider sets the user lookup used by Login.
func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithAuditSink sets the sink that receives audit events.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the engine logger. The default discards everything.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetricsEnabled toggles in-process metrics.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the Decide latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil && cfg.ValidationMode == ModeStrict {
		return nil, errors.New("strict validation mode requires a redis client")
	}

	routes := b.routes
	if routes == nil {
		routes = route.Default()
	}
	if err := routes.CheckDashboards(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	engine := &Engine{
		config:       cfg,
		routes:       routes,
		userProvider: b.userProvider,
		logger:       logger,
		metrics:      NewMetrics(cfg.Metrics),
	}

	if b.redis != nil {
		engine.sessions = session.NewStore(b.redis, cfg.Session.RedisPrefix)
		if cfg.RateLimit.Enabled {
			engine.limiter = rate.New(b.redis, rate.Config{
				EnableIPThrottle: cfg.RateLimit.EnableIPThrottle,
				MaxLoginAttempts: cfg.RateLimit.MaxLoginAttempts,
				LoginCooldown:    cfg.RateLimit.LoginCooldown,
			})
		}
	}

	ph, err := password.New(cfg.Password)
	if err != nil {
		return nil, err
	}
	engine.hasher = ph

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		RequireIAT:    true,
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	// Started last so a failed Build leaves no goroutine behind.
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	b.built = true

	return engine, nil
}
