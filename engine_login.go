package portalguard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uimp/portalguard/internal/rate"
	"github.com/uimp/portalguard/jwt"
	"github.com/uimp/portalguard/session"
)

// Login checks email and password and, on success, creates a session and
// returns a signed token for it.
//
// Unknown emails and wrong passwords both return [ErrInvalidCredentials].
// A disabled account is reported only after the password has been verified.
// Every failure counts against the login throttle when it is enabled.
func (e *Engine) Login(ctx context.Context, email, plaintext string) (LoginResult, error) {
	if e.sessions == nil || e.userProvider == nil {
		return LoginResult{}, ErrEngineNotReady
	}
	email = normalizeEmail(email)
	ip := ClientIPFromContext(ctx)

	if e.limiter != nil {
		if err := e.limiter.CheckLogin(ctx, email, ip); err != nil {
			return LoginResult{}, e.loginThrottled(ctx, email, ip, err)
		}
	}

	if email == "" || plaintext == "" {
		return LoginResult{}, e.loginFailed(ctx, email, ip, "", "empty_credentials")
	}

	user, err := e.userProvider.GetUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			e.logger.Warn("user lookup failed", "error", err)
			return LoginResult{}, fmt.Errorf("%w: %v", ErrUserStoreUnavailable, err)
		}
		e.burnPasswordCheck(plaintext)
		return LoginResult{}, e.loginFailed(ctx, email, ip, "", "user_not_found")
	}

	ok, err := e.hasher.Verify(plaintext, user.PasswordHash)
	if err != nil || !ok {
		reason := "bad_password"
		if err != nil {
			e.logger.Warn("stored password hash unusable", "user_id", user.UserID, "error", err)
			reason = "bad_hash"
		}
		return LoginResult{}, e.loginFailed(ctx, email, ip, user.UserID, reason)
	}
	if user.Disabled {
		e.metrics.Inc(MetricLoginFailure)
		e.emitAudit(ctx, AuditEvent{EventType: AuditLogin, UserID: user.UserID, IP: ip, Error: ErrAccountDisabled.Error()})
		return LoginResult{}, ErrAccountDisabled
	}
	if !user.Role.Valid() {
		e.metrics.Inc(MetricLoginFailure)
		e.emitAudit(ctx, AuditEvent{EventType: AuditLogin, UserID: user.UserID, IP: ip, Error: ErrRoleInvalid.Error()})
		return LoginResult{}, ErrRoleInvalid
	}

	if e.limiter != nil {
		if err := e.limiter.Reset(ctx, email); err != nil {
			e.logger.Warn("login throttle reset failed", "error", err)
		}
	}
	e.maybeUpgradeHash(ctx, user, plaintext)

	res, err := e.Issue(ctx, Identity{ID: user.UserID, Role: user.Role, Email: user.Email})
	if err != nil {
		return LoginResult{}, err
	}

	e.metrics.Inc(MetricLoginSuccess)
	e.emitAudit(ctx, AuditEvent{
		EventType: AuditLogin,
		UserID:    user.UserID,
		Role:      user.Role.String(),
		SessionID: res.SessionID,
		IP:        ip,
		Success:   true,
	})
	return res, nil
}

// Issue creates a session for id and signs a token for it without checking
// credentials. Callers are responsible for having authenticated id.
func (e *Engine) Issue(ctx context.Context, id Identity) (LoginResult, error) {
	if !id.Role.Valid() || id.ID == "" {
		return LoginResult{}, ErrRoleInvalid
	}
	sid := uuid.NewString()

	token, expiresAt, err := e.jwtManager.Issue(jwt.Subject{
		UserID:    id.ID,
		Role:      id.Role.String(),
		Email:     id.Email,
		SessionID: sid,
	})
	if err != nil {
		return LoginResult{}, fmt.Errorf("%w: %v", ErrSessionCreationFailed, err)
	}

	if e.sessions != nil {
		now := time.Now()
		err := e.sessions.Save(ctx, &session.Session{
			SessionID: sid,
			UserID:    id.ID,
			Email:     id.Email,
			Role:      uint8(id.Role),
			CreatedAt: now.Unix(),
			ExpiresAt: now.Add(e.config.Session.Lifetime).Unix(),
		}, e.config.Session.Lifetime)
		if err != nil {
			e.logger.Warn("session save failed", "user_id", id.ID, "error", err)
			return LoginResult{}, fmt.Errorf("%w: %v", ErrSessionCreationFailed, err)
		}
		e.metrics.Inc(MetricSessionCreated)
	}

	return LoginResult{Token: token, Identity: id, SessionID: sid, ExpiresAt: expiresAt}, nil
}

// Logout deletes the session behind token. Logging out an already-deleted
// session succeeds. A token that cannot be verified returns [ErrTokenInvalid].
func (e *Engine) Logout(ctx context.Context, token string) error {
	if e.sessions == nil {
		return ErrEngineNotReady
	}
	claims, err := e.jwtManager.Parse(token)
	if err != nil || claims.SID == "" {
		return ErrTokenInvalid
	}
	if err := e.sessions.Delete(ctx, claims.SID); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	e.metrics.Inc(MetricLogout)
	e.emitAudit(ctx, AuditEvent{
		EventType: AuditLogout,
		UserID:    claims.UID,
		SessionID: claims.SID,
		IP:        ClientIPFromContext(ctx),
		Success:   true,
	})
	return nil
}

// LogoutAll deletes every session of userID and returns how many were live.
func (e *Engine) LogoutAll(ctx context.Context, userID string) (int, error) {
	if e.sessions == nil {
		return 0, ErrEngineNotReady
	}
	n, err := e.sessions.DeleteAllForUser(ctx, userID)
	if err != nil {
		return n, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	e.metrics.Inc(MetricLogout)
	e.emitAudit(ctx, AuditEvent{
		EventType: AuditLogoutAll,
		UserID:    userID,
		IP:        ClientIPFromContext(ctx),
		Success:   true,
		Metadata:  map[string]string{"sessions": fmt.Sprint(n)},
	})
	return n, nil
}

// HashPassword hashes plaintext with the engine's password parameters.
func (e *Engine) HashPassword(plaintext string) (string, error) {
	return e.hasher.Hash(plaintext)
}

func (e *Engine) loginFailed(ctx context.Context, email, ip, userID, reason string) error {
	if e.limiter != nil {
		if err := e.limiter.RecordFailure(ctx, email, ip); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				return e.loginThrottled(ctx, email, ip, err)
			}
			e.logger.Warn("login throttle update failed", "error", err)
		}
	}
	e.metrics.Inc(MetricLoginFailure)
	e.emitAudit(ctx, AuditEvent{
		EventType: AuditLogin,
		UserID:    userID,
		IP:        ip,
		Reason:    reason,
		Error:     ErrInvalidCredentials.Error(),
		Metadata:  map[string]string{"email": email},
	})
	return ErrInvalidCredentials
}

func (e *Engine) loginThrottled(ctx context.Context, email, ip string, cause error) error {
	if !errors.Is(cause, rate.ErrRateLimited) {
		// Without a working throttle, fail closed rather than allow unbounded guessing.
		e.logger.Warn("login throttle unavailable", "error", cause)
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, cause)
	}
	e.metrics.Inc(MetricLoginRateLimited)
	e.emitAudit(ctx, AuditEvent{
		EventType: AuditLogin,
		IP:        ip,
		Reason:    "rate_limited",
		Error:     ErrLoginRateLimited.Error(),
		Metadata:  map[string]string{"email": email},
	})
	return ErrLoginRateLimited
}

// burnPasswordCheck spends the same work as a real verify so response timing
// does not reveal whether an email is registered.
func (e *Engine) burnPasswordCheck(plaintext string) {
	e.dummyOnce.Do(func() {
		e.dummyHash, _ = e.hasher.Hash("portalguard-timing-equalizer")
	})
	if e.dummyHash != "" {
		_, _ = e.hasher.Verify(plaintext, e.dummyHash)
	}
}

func (e *Engine) maybeUpgradeHash(ctx context.Context, user UserRecord, plaintext string) {
	upgrader, ok := e.userProvider.(PasswordUpgrader)
	if !ok {
		return
	}
	need, err := e.hasher.NeedsRehash(user.PasswordHash)
	if err != nil || !need {
		return
	}
	hash, err := e.hasher.Hash(plaintext)
	if err != nil {
		return
	}
	if err := upgrader.UpdatePasswordHash(ctx, user.UserID, hash); err != nil {
		e.logger.Warn("password rehash not persisted", "user_id", user.UserID, "error", err)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
