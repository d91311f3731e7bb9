package portalguard

import (
	"net/http"
	"time"
)

// SecurityReport summarizes the security posture of an engine's
// configuration.
type SecurityReport struct {
	SigningAlgorithm   string
	ValidationMode     ValidationMode
	StrictMode         bool
	AccessTTL          time.Duration
	SessionLifetime    time.Duration
	Argon2             PasswordConfigReport
	RateLimitingActive bool
	IPThrottleActive   bool
	CookieSecure       bool
	CookieSameSite     string
	AuditEnabled       bool
	MetricsEnabled     bool
}

// PasswordConfigReport is the argon2id cost in use.
type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// SecurityReport describes e's effective configuration.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	cfg := e.config

	sameSite := "default"
	switch cfg.Cookie.SameSite {
	case http.SameSiteLaxMode:
		sameSite = "lax"
	case http.SameSiteStrictMode:
		sameSite = "strict"
	case http.SameSiteNoneMode:
		sameSite = "none"
	}

	return SecurityReport{
		SigningAlgorithm: cfg.JWT.SigningMethod,
		ValidationMode:   cfg.ValidationMode,
		StrictMode:       cfg.ValidationMode == ModeStrict,
		AccessTTL:        cfg.JWT.AccessTTL,
		SessionLifetime:  cfg.Session.Lifetime,
		Argon2: PasswordConfigReport{
			Memory:      cfg.Password.Memory,
			Time:        cfg.Password.Time,
			Parallelism: cfg.Password.Parallelism,
			SaltLength:  cfg.Password.SaltLength,
			KeyLength:   cfg.Password.KeyLength,
		},
		RateLimitingActive: e.limiter != nil && cfg.RateLimit.MaxLoginAttempts > 0 && cfg.RateLimit.LoginCooldown > 0,
		IPThrottleActive:   e.limiter != nil && cfg.RateLimit.EnableIPThrottle,
		CookieSecure:       cfg.Cookie.Secure,
		CookieSameSite:     sameSite,
		AuditEnabled:       cfg.Audit.Enabled,
		MetricsEnabled:     cfg.Metrics.Enabled,
	}
}

// Warnings lists settings an operator should not run in production with.
func (r SecurityReport) Warnings() []string {
	var out []string
	if !r.StrictMode {
		out = append(out, "jwt-only validation: logout and revocation take effect only when tokens expire")
	}
	if !r.RateLimitingActive {
		out = append(out, "login rate limiting is off")
	}
	if !r.CookieSecure {
		out = append(out, "session cookie is sent over plain HTTP")
	}
	if r.CookieSameSite == "none" {
		out = append(out, "session cookie is SameSite=None")
	}
	if r.SigningAlgorithm == "hs256" {
		out = append(out, "hs256 signing shares one secret between issuer and verifiers")
	}
	return out
}
