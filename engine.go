package portalguard

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/uimp/portalguard/internal/audit"
	"github.com/uimp/portalguard/internal/rate"
	"github.com/uimp/portalguard/jwt"
	"github.com/uimp/portalguard/password"
	"github.com/uimp/portalguard/role"
	"github.com/uimp/portalguard/route"
	"github.com/uimp/portalguard/session"
)

// Engine verifies tokens, decides route access, and runs the login flow.
//
// Engine instances are built once by [Builder.Build] and are safe for
// concurrent use.
type Engine struct {
	config       Config
	routes       *route.Table
	jwtManager   *jwt.Manager
	sessions     *session.Store
	limiter      *rate.Limiter
	hasher       *password.Hasher
	userProvider UserProvider
	audit        *audit.Dispatcher
	metrics      *Metrics
	logger       *slog.Logger

	dummyOnce sync.Once
	dummyHash string
}

// Routes returns the engine's route table.
func (e *Engine) Routes() *route.Table {
	return e.routes
}

// Cookie returns the session cookie settings.
func (e *Engine) Cookie() CookieConfig {
	return e.config.Cookie
}

// ValidationMode returns the configured verification mode.
func (e *Engine) ValidationMode() ValidationMode {
	return e.config.ValidationMode
}

// Verify checks token and returns the identity it carries.
//
// Verify never fails loudly. Empty, malformed, expired, or tampered tokens,
// tokens naming an unknown role, and (in strict mode) tokens whose session is
// gone or cannot be looked up all yield an invalid Verification. A panic in
// any verification step is recovered and also yields an invalid result.
func (e *Engine) Verify(ctx context.Context, token string) (v Verification) {
	if token == "" {
		return Verification{}
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("token verification panicked", "panic", r)
			e.metrics.Inc(MetricVerifyFailure)
			v = Verification{}
		}
	}()

	claims, err := e.jwtManager.Parse(token)
	if err != nil {
		e.metrics.Inc(MetricVerifyFailure)
		e.logger.Debug("token rejected", "error", err)
		return Verification{}
	}
	r, ok := role.Parse(claims.Role)
	if !ok {
		e.metrics.Inc(MetricVerifyFailure)
		e.logger.Debug("token carries unknown role", "role", claims.Role, "user_id", claims.UID)
		return Verification{}
	}

	v = Verification{
		Valid:     true,
		User:      Identity{ID: claims.UID, Role: r, Email: claims.Email},
		SessionID: claims.SID,
	}
	if claims.IssuedAt != nil {
		v.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		v.ExpiresAt = claims.ExpiresAt.Time
	}

	if e.config.ValidationMode == ModeStrict && !e.sessionLive(ctx, v) {
		e.metrics.Inc(MetricVerifyFailure)
		return Verification{}
	}
	return v
}

// sessionLive performs the strict-mode lookup. Any backend error denies.
func (e *Engine) sessionLive(ctx context.Context, v Verification) bool {
	if e.sessions == nil || v.SessionID == "" {
		return false
	}
	sess, err := e.sessions.Get(ctx, v.SessionID)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			e.logger.Warn("session lookup failed; denying", "error", err, "session_id", v.SessionID)
			e.emitAudit(ctx, AuditEvent{
				EventType: AuditVerifyError,
				UserID:    v.User.ID,
				SessionID: v.SessionID,
				Error:     err.Error(),
			})
		}
		return false
	}
	return sess.UserID == v.User.ID && sess.Role == uint8(v.User.Role)
}

// Decide returns the access decision for a request to path carrying token.
//
// The outcome depends only on path, token, the route table, and (in strict
// mode) session existence. Metrics and audit records are the only side
// effects, so Decide is idempotent for a given input and session state.
func (e *Engine) Decide(ctx context.Context, path, token string) Decision {
	start := time.Now()
	d := e.decide(ctx, route.Clean(path), token)
	e.metrics.Observe(MetricDecideLatency, time.Since(start))
	e.recordDecision(ctx, path, d)
	return d
}

func (e *Engine) decide(ctx context.Context, p, token string) Decision {
	class := e.routes.Classify(p)

	if class.IsPublic() {
		if !route.IsAuthPage(p) {
			return allow(ReasonPublic, class, nil)
		}
		if v := e.Verify(ctx, token); v.Valid {
			return redirect(role.Dashboard(v.User.Role), ReasonAlreadyAuthenticated, class)
		}
		return allow(ReasonPublic, class, nil)
	}

	v := e.Verify(ctx, token)
	if !v.Valid {
		return redirect(LoginURL(p), ReasonUnauthenticated, class)
	}
	if !class.Permits(v.User.Role) {
		return redirect(role.Dashboard(v.User.Role), ReasonUnauthorized, class)
	}
	id := v.User
	return allow(ReasonAuthorized, class, &id)
}

func (e *Engine) recordDecision(ctx context.Context, path string, d Decision) {
	switch d.Reason {
	case ReasonUnauthenticated:
		e.metrics.Inc(MetricRedirectLogin)
	case ReasonUnauthorized:
		e.metrics.Inc(MetricRedirectDashboard)
	case ReasonAlreadyAuthenticated:
		e.metrics.Inc(MetricRedirectAuthPage)
	default:
		e.metrics.Inc(MetricDecisionAllow)
	}

	if e.logger.Enabled(ctx, slog.LevelDebug) {
		e.logger.LogAttrs(ctx, slog.LevelDebug, "route decision",
			slog.String("path", path),
			slog.String("action", d.Action.String()),
			slog.String("reason", d.Reason.String()),
			slog.String("class", d.Classification.String()),
			slog.String("location", d.Location),
		)
	}

	if d.Action == ActionRedirect {
		e.emitAudit(ctx, AuditEvent{
			EventType: AuditRedirect,
			Path:      path,
			Location:  d.Location,
			Reason:    d.Reason.String(),
			IP:        ClientIPFromContext(ctx),
			Success:   true,
		})
	}
}

// RecordGuardNavigation counts a navigation issued by a client route guard.
func (e *Engine) RecordGuardNavigation(string) {
	e.metrics.Inc(MetricGuardNavigation)
}

// MetricsSnapshot returns the engine's current metrics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	return e.metrics.Snapshot()
}

// AuditDropped returns the number of audit events dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	return e.audit.Dropped()
}

// Ping checks the session backend. An engine without Redis is always healthy.
func (e *Engine) Ping(ctx context.Context) error {
	if e.sessions == nil {
		return nil
	}
	if _, err := e.sessions.Ping(ctx); err != nil {
		return err
	}
	return nil
}

// Close flushes pending audit events.
func (e *Engine) Close() {
	e.audit.Close()
}

func (e *Engine) emitAudit(ctx context.Context, event AuditEvent) {
	if e.audit == nil {
		return
	}
	e.audit.Emit(ctx, event)
}
