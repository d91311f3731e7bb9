package settings

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"

	"github.com/uimp/portalguard"
)

// EngineConfig maps s onto a portalguard.Config. When ed25519 signing is
// selected and no key file is configured, a throwaway key pair is generated
// and ephemeral is true: tokens will not survive a restart.
func (s Settings) EngineConfig() (cfg portalguard.Config, ephemeral bool, err error) {
	cfg = portalguard.DefaultConfig()

	mode, err := portalguard.ParseValidationMode(s.Auth.ValidationMode)
	if err != nil {
		return cfg, false, err
	}
	cfg.ValidationMode = mode

	if s.Auth.TokenTTL > 0 {
		cfg.JWT.AccessTTL = s.Auth.TokenTTL
		if cfg.Session.Lifetime < s.Auth.TokenTTL {
			cfg.Session.Lifetime = s.Auth.TokenTTL
		}
	}
	if s.Auth.Issuer != "" {
		cfg.JWT.Issuer = s.Auth.Issuer
	}
	cfg.Cookie.Secure = s.Auth.CookieSecure
	cfg.Cookie.Domain = s.Auth.CookieDomain
	cfg.Audit.Enabled = s.Auth.AuditLog
	if s.Auth.MaxLoginTries > 0 {
		cfg.RateLimit.MaxLoginAttempts = s.Auth.MaxLoginTries
	}
	cfg.Metrics.Enabled = s.Metrics

	switch s.Auth.SigningMethod {
	case "hs256":
		if s.Auth.Secret == "" {
			return cfg, false, errors.New("settings: hs256 needs auth.secret or UIMP_JWT_SECRET")
		}
		cfg.JWT.SigningMethod = "hs256"
		cfg.JWT.PrivateKey = []byte(s.Auth.Secret)
	case "ed25519", "":
		cfg.JWT.SigningMethod = "ed25519"
		ephemeral, err = s.loadEdKeys(&cfg.JWT)
		if err != nil {
			return cfg, false, err
		}
	default:
		return cfg, false, fmt.Errorf("settings: unknown signing method %q", s.Auth.SigningMethod)
	}

	return cfg, ephemeral, cfg.Validate()
}

func (s Settings) loadEdKeys(jc *portalguard.JWTConfig) (bool, error) {
	if s.Auth.PrivateKeyFile == "" && s.Auth.PublicKeyFile == "" {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return false, err
		}
		jc.PublicKey, jc.PrivateKey = pub, priv
		return true, nil
	}

	if s.Auth.PrivateKeyFile != "" {
		pemBytes, err := os.ReadFile(s.Auth.PrivateKeyFile)
		if err != nil {
			return false, fmt.Errorf("settings: read private key: %w", err)
		}
		jc.PrivateKey = pemBytes
	}
	if s.Auth.PublicKeyFile != "" {
		pemBytes, err := os.ReadFile(s.Auth.PublicKeyFile)
		if err != nil {
			return false, fmt.Errorf("settings: read public key: %w", err)
		}
		jc.PublicKey = pemBytes
		return false, nil
	}

	// Derive the verification key from the signing key.
	key, err := jwt.ParseEdPrivateKeyFromPEM(jc.PrivateKey)
	if err != nil {
		return false, fmt.Errorf("settings: parse private key: %w", err)
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return false, errors.New("settings: private key is not ed25519")
	}
	jc.PublicKey = priv.Public().(ed25519.PublicKey)
	return false, nil
}
