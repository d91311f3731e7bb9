// Package settings loads process configuration for the portal binaries.
//
// Values are layered: built-in defaults, then a YAML file, then UIMP_*
// environment variables (a .env file is loaded first when present), then
// command-line flags.
package settings

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings is the full process configuration.
type Settings struct {
	Listen     string        `yaml:"listen"`
	TrustProxy bool          `yaml:"trust_proxy"`
	Redis      RedisSettings `yaml:"redis"`
	Users      UserSettings  `yaml:"users"`
	// RoutesFile is an optional YAML route table. Empty means the built-in one.
	RoutesFile string       `yaml:"routes_file"`
	Log        LogSettings  `yaml:"log"`
	Auth       AuthSettings `yaml:"auth"`
	Metrics    bool         `yaml:"metrics"`
	// MetricsToken lets a scraper read /metrics with a bearer token. Without
	// it only ADMIN sessions may read the endpoint.
	MetricsToken string `yaml:"metrics_token"`
	// MetricsExportInterval is how often OpenTelemetry readings are written
	// to the log. Zero disables the periodic export.
	MetricsExportInterval time.Duration `yaml:"metrics_export_interval"`
}

// RedisSettings locates the session store. An empty Addr makes the gateway
// start an embedded in-memory Redis.
type RedisSettings struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// UserSettings selects the user store.
type UserSettings struct {
	// Driver is "memory" or "sqlite".
	Driver     string `yaml:"driver"`
	SeedFile   string `yaml:"seed_file"`
	SQLitePath string `yaml:"sqlite_path"`
}

// LogSettings configures internal/logging.
type LogSettings struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AuthSettings is the subset of engine configuration exposed to operators.
type AuthSettings struct {
	ValidationMode string        `yaml:"validation_mode"`
	SigningMethod  string        `yaml:"signing_method"`
	Secret         string        `yaml:"secret"`
	PrivateKeyFile string        `yaml:"private_key_file"`
	PublicKeyFile  string        `yaml:"public_key_file"`
	Issuer         string        `yaml:"issuer"`
	TokenTTL       time.Duration `yaml:"token_ttl"`
	CookieSecure   bool          `yaml:"cookie_secure"`
	CookieDomain   string        `yaml:"cookie_domain"`
	AuditLog       bool          `yaml:"audit_log"`
	MaxLoginTries  int           `yaml:"max_login_attempts"`
}

// Default returns settings suitable for local development.
func Default() Settings {
	return Settings{
		Listen: ":8080",
		Users: UserSettings{
			Driver:     "memory",
			SQLitePath: "uimp-users.db",
		},
		Log: LogSettings{Level: "info", Format: "text"},
		Auth: AuthSettings{
			ValidationMode: "strict",
			SigningMethod:  "ed25519",
			Issuer:         "uimp",
			TokenTTL:       24 * time.Hour,
			CookieSecure:   true,
			MaxLoginTries:  5,
		},
		Metrics:               true,
		MetricsExportInterval: 5 * time.Minute,
	}
}

// LoadFile overlays the YAML file at path onto s. Unknown keys are an error.
func (s *Settings) LoadFile(path string) error {
	f, err := os.Open(path) //nolint:gosec // operator-supplied config path
	if err != nil {
		return fmt.Errorf("settings: open %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(s); err != nil {
		return fmt.Errorf("settings: parse %s: %w", path, err)
	}
	return nil
}

// Validate checks values that the engine config does not.
func (s Settings) Validate() error {
	switch s.Users.Driver {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("settings: unknown users driver %q", s.Users.Driver)
	}
	if s.Users.Driver == "sqlite" && s.Users.SQLitePath == "" {
		return errors.New("settings: sqlite users driver needs sqlite_path")
	}
	if s.Listen == "" {
		return errors.New("settings: listen address is required")
	}
	if s.MetricsExportInterval < 0 {
		return errors.New("settings: metrics_export_interval must not be negative")
	}
	return nil
}
