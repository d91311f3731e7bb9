package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the token signature algorithm.
type SigningMethod string

const (
	// MethodEd25519 signs with EdDSA over Ed25519. This is the default.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with HMAC-SHA256 over a shared secret.
	MethodHS256 SigningMethod = "hs256"
)

const defaultMaxFutureIAT = 10 * time.Minute

var (
	// ErrNoSigningKey is returned by Issue on a verify-only manager.
	ErrNoSigningKey = errors.New("jwt: no signing key configured")
	// ErrUnknownKeyID is returned for a kid header the manager does not trust.
	ErrUnknownKeyID = errors.New("jwt: unknown kid")
	// ErrIssuedInFuture is returned when iat is beyond the allowed clock skew.
	ErrIssuedInFuture = errors.New("jwt: iat too far in the future")
)

// Config defines token lifetime, keys, and validation bounds.
//
// Ed25519 keys may be raw key bytes or PEM. For hs256, PrivateKey is the
// shared secret and PublicKey is ignored. VerifyKeys, when set, makes the kid
// header mandatory and selects the verification key by it.
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	RequireIAT    bool
	MaxFutureIAT  time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte
}

// Manager signs and parses session tokens. Keys are decoded once by
// NewManager, so a Manager is safe for concurrent use.
type Manager struct {
	ttl          time.Duration
	method       jwt.SigningMethod
	keyID        string
	issuer       string
	audience     string
	maxFutureIAT time.Duration

	signKey   any
	verifyKey any
	byKeyID   map[string]any

	parser *jwt.Parser
	now    func() time.Time
}

// SessionClaims is the token payload.
type SessionClaims struct {
	UID   string `json:"uid"`
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
	SID   string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// Subject is the identity a token is issued for.
type Subject struct {
	UserID    string
	Role      string
	Email     string
	SessionID string
}

// NewManager validates cfg, decodes its keys, and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	switch {
	case cfg.AccessTTL <= 0:
		return nil, errors.New("jwt: access TTL must be positive")
	case cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute:
		return nil, errors.New("jwt: leeway must be within [0, 2m]")
	case cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour:
		return nil, errors.New("jwt: max future iat must be within [0, 24h]")
	}

	m := &Manager{
		ttl:          cfg.AccessTTL,
		keyID:        strings.TrimSpace(cfg.KeyID),
		maxFutureIAT: cfg.MaxFutureIAT,
		now:          time.Now,
	}
	if m.maxFutureIAT == 0 {
		m.maxFutureIAT = defaultMaxFutureIAT
	}

	var decodeVerify func([]byte) (any, error)
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("jwt: hs256 needs a secret")
		}
		m.method = jwt.SigningMethodHS256
		secret := append([]byte(nil), cfg.PrivateKey...)
		m.signKey, m.verifyKey = secret, secret
		decodeVerify = func(b []byte) (any, error) { return append([]byte(nil), b...), nil }
	case MethodEd25519:
		m.method = jwt.SigningMethodEdDSA
		if len(cfg.PrivateKey) > 0 {
			priv, err := parseEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			m.signKey = priv
		}
		if len(cfg.PublicKey) > 0 {
			pub, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, err
			}
			m.verifyKey = pub
		}
		if m.verifyKey == nil && len(cfg.VerifyKeys) == 0 {
			return nil, errors.New("jwt: ed25519 needs a public key or verify key set")
		}
		decodeVerify = func(b []byte) (any, error) { return parseEdPublicKey(b) }
	default:
		return nil, fmt.Errorf("jwt: unsupported signing method %q", cfg.SigningMethod)
	}

	if len(cfg.VerifyKeys) > 0 {
		m.byKeyID = make(map[string]any, len(cfg.VerifyKeys))
		for kid, raw := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("jwt: verify key set contains an empty kid")
			}
			key, err := decodeVerify(raw)
			if err != nil {
				return nil, fmt.Errorf("jwt: verify key %q: %w", kid, err)
			}
			m.byKeyID[kid] = key
		}
		if m.keyID != "" {
			if _, ok := m.byKeyID[m.keyID]; !ok {
				return nil, fmt.Errorf("jwt: KeyID %q is not in the verify key set", m.keyID)
			}
		}
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return m.now() }),
	}
	if cfg.Leeway > 0 {
		options = append(options, jwt.WithLeeway(cfg.Leeway))
	}
	if cfg.RequireIAT {
		options = append(options, jwt.WithIssuedAt())
	}
	if cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		options = append(options, jwt.WithAudience(cfg.Audience))
	}
	m.parser = jwt.NewParser(options...)
	m.issuer, m.audience = cfg.Issuer, cfg.Audience

	return m, nil
}

// TTL returns the configured token lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue signs a token for sub that expires after the configured TTL.
func (m *Manager) Issue(sub Subject) (string, time.Time, error) {
	if m.signKey == nil {
		return "", time.Time{}, ErrNoSigningKey
	}
	now := m.now()
	expiresAt := now.Add(m.ttl)

	claims := SessionClaims{
		UID:   sub.UserID,
		Role:  sub.Role,
		Email: sub.Email,
		SID:   sub.SessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub.UserID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.issuer,
		},
	}
	if m.audience != "" {
		claims.Audience = jwt.ClaimStrings{m.audience}
	}

	token := jwt.NewWithClaims(m.method, claims)
	if m.keyID != "" {
		token.Header["kid"] = m.keyID
	}
	signed, err := token.SignedString(m.signKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Parse verifies tokenStr and returns its claims.
//
// Parse returns an error for any signature, algorithm, kid, expiry, issuer,
// audience, or iat violation, and when the uid claim is empty.
func (m *Manager) Parse(tokenStr string) (*SessionClaims, error) {
	if tokenStr == "" {
		return nil, jwt.ErrTokenMalformed
	}

	claims := &SessionClaims{}
	token, err := m.parser.ParseWithClaims(tokenStr, claims, m.keyFor)
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.UID == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.IssuedAt != nil && claims.IssuedAt.After(m.now().Add(m.maxFutureIAT)) {
		return nil, ErrIssuedInFuture
	}
	return claims, nil
}

func (m *Manager) keyFor(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	if m.byKeyID != nil {
		key, ok := m.byKeyID[kid]
		if !ok {
			return nil, ErrUnknownKeyID
		}
		return key, nil
	}
	if m.keyID != "" && kid != m.keyID {
		return nil, ErrUnknownKeyID
	}
	if m.verifyKey == nil {
		return nil, errors.New("jwt: no verification key configured")
	}
	return m.verifyKey, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(append([]byte(nil), key...)), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("jwt: invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("jwt: private key is not ed25519")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(append([]byte(nil), key...)), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("jwt: invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("jwt: public key is not ed25519")
	}
	return edKey, nil
}
