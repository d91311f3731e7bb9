package portalguard

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/uimp/portalguard/password"
)

// Config groups every tunable of an [Engine].
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	JWT            JWTConfig
	Session        SessionConfig
	Cookie         CookieConfig
	RateLimit      RateLimitConfig
	Audit          AuditConfig
	Metrics        MetricsConfig
	Password       password.Config
	ValidationMode ValidationMode
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls token signing and verification.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "ed25519" (default) or "hs256"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls server-side session records.
type SessionConfig struct {
	RedisPrefix string
	// Lifetime is how long a session record lives in Redis. It must cover the
	// token lifetime or strict mode would reject live tokens.
	Lifetime time.Duration
}

// CookieConfig describes the cookie that carries the session token.
type CookieConfig struct {
	Name     string
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

// RateLimitConfig throttles failed logins.
type RateLimitConfig struct {
	Enabled          bool
	EnableIPThrottle bool
	MaxLoginAttempts int
	LoginCooldown    time.Duration
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles in-process counters and latency histograms.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// ValidationMode selects how much work token verification does.
type ValidationMode int

const (
	// ModeJWTOnly checks signature and claims only. No I/O.
	ModeJWTOnly ValidationMode = iota
	// ModeStrict also requires the session to exist in Redis.
	ModeStrict
)

func (m ValidationMode) String() string {
	switch m {
	case ModeJWTOnly:
		return "jwt_only"
	case ModeStrict:
		return "strict"
	default:
		return fmt.Sprintf("ValidationMode(%d)", int(m))
	}
}

// ParseValidationMode accepts "jwt_only"/"jwt-only" and "strict".
func ParseValidationMode(s string) (ValidationMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "jwt_only", "jwt-only", "jwt":
		return ModeJWTOnly, nil
	case "strict", "":
		return ModeStrict, nil
	default:
		return 0, fmt.Errorf("unknown validation mode %q", s)
	}
}

// DefaultCookieName is the cookie the edge reads the token from.
const DefaultCookieName = "token"

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns production defaults. Signing keys must still be set.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     24 * time.Hour,
			SigningMethod: "ed25519",
			Issuer:        "uimp",
			Leeway:        30 * time.Second,
		},
		Session: SessionConfig{
			RedisPrefix: "ps",
			Lifetime:    24 * time.Hour,
		},
		Cookie: CookieConfig{
			Name:     DefaultCookieName,
			Path:     "/",
			Secure:   true,
			SameSite: http.SameSiteLaxMode,
		},
		RateLimit: RateLimitConfig{
			Enabled:          true,
			EnableIPThrottle: false,
			MaxLoginAttempts: 5,
			LoginCooldown:    15 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		Password:       password.DefaultConfig(),
		ValidationMode: ModeStrict,
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration error found.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	switch c.JWT.SigningMethod {
	case "ed25519":
		if len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PublicKey")
		}
	case "hs256":
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be within [0, 2m]")
	}

	// Session
	if strings.TrimSpace(c.Session.RedisPrefix) == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}
	if c.Session.Lifetime < c.JWT.AccessTTL {
		return errors.New("Session Lifetime must be >= JWT AccessTTL")
	}

	// Cookie
	if c.Cookie.Name == "" || strings.ContainsAny(c.Cookie.Name, " ;,=\t\r\n") {
		return errors.New("Cookie Name must be a valid cookie token")
	}
	if c.Cookie.SameSite == http.SameSiteNoneMode && !c.Cookie.Secure {
		return errors.New("Cookie SameSite=None requires Secure")
	}

	// Rate limit
	if c.RateLimit.Enabled {
		if c.RateLimit.MaxLoginAttempts <= 0 {
			return errors.New("RateLimit MaxLoginAttempts must be > 0")
		}
		if c.RateLimit.LoginCooldown <= 0 {
			return errors.New("RateLimit LoginCooldown must be > 0")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	if err := c.Password.Validate(); err != nil {
		return err
	}

	if c.ValidationMode != ModeJWTOnly && c.ValidationMode != ModeStrict {
		return errors.New("invalid ValidationMode")
	}

	return nil
}
