package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "UIMP_"

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("settings: load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overlays UIMP_* variables found by lookup onto s.
func (s *Settings) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(name string) (string, bool) { return lookup(EnvPrefix + name) }

	str := func(name string, dst *string) {
		if v, ok := get(name); ok {
			*dst = v
		}
	}
	var errs []error
	boolean := func(name string, dst *bool) {
		if v, ok := get(name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := get(name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	duration := func(name string, dst *time.Duration) {
		if v, ok := get(name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}

	str("LISTEN", &s.Listen)
	boolean("TRUST_PROXY", &s.TrustProxy)
	str("REDIS_ADDR", &s.Redis.Addr)
	str("REDIS_PASSWORD", &s.Redis.Password)
	integer("REDIS_DB", &s.Redis.DB)
	str("USERS_DRIVER", &s.Users.Driver)
	str("USERS_SEED", &s.Users.SeedFile)
	str("SQLITE_PATH", &s.Users.SQLitePath)
	str("ROUTES_FILE", &s.RoutesFile)
	str("LOG_LEVEL", &s.Log.Level)
	str("LOG_FORMAT", &s.Log.Format)
	str("VALIDATION_MODE", &s.Auth.ValidationMode)
	str("JWT_METHOD", &s.Auth.SigningMethod)
	str("JWT_SECRET", &s.Auth.Secret)
	str("JWT_PRIVATE_KEY_FILE", &s.Auth.PrivateKeyFile)
	str("JWT_PUBLIC_KEY_FILE", &s.Auth.PublicKeyFile)
	str("JWT_ISSUER", &s.Auth.Issuer)
	duration("TOKEN_TTL", &s.Auth.TokenTTL)
	boolean("COOKIE_SECURE", &s.Auth.CookieSecure)
	str("COOKIE_DOMAIN", &s.Auth.CookieDomain)
	boolean("AUDIT_LOG", &s.Auth.AuditLog)
	integer("MAX_LOGIN_ATTEMPTS", &s.Auth.MaxLoginTries)
	boolean("METRICS", &s.Metrics)
	str("METRICS_TOKEN", &s.MetricsToken)
	duration("METRICS_EXPORT_INTERVAL", &s.MetricsExportInterval)

	return errors.Join(errs...)
}
