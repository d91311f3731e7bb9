package settings

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/uimp/portalguard"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	p := writeFile(t, "uimp.yaml", `
listen: ":9090"
redis:
  addr: "redis:6379"
users:
  driver: sqlite
  sqlite_path: /var/lib/uimp/users.db
auth:
  validation_mode: jwt-only
  token_ttl: 2h
`)
	s := Default()
	if err := s.LoadFile(p); err != nil {
		t.Fatalf("load: %v", err)
	}

	want := Default()
	want.Listen = ":9090"
	want.Redis.Addr = "redis:6379"
	want.Users.Driver = "sqlite"
	want.Users.SQLitePath = "/var/lib/uimp/users.db"
	want.Auth.ValidationMode = "jwt-only"
	want.Auth.TokenTTL = 2 * time.Hour
	if diff := cmp.Diff(want, s); diff != "" {
		t.Fatalf("settings mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	p := writeFile(t, "bad.yaml", "listne: ':1'\n")
	s := Default()
	if err := s.LoadFile(p); err == nil {
		t.Fatal("expected unknown key error")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"UIMP_REDIS_ADDR":    "10.0.0.5:6379",
		"UIMP_REDIS_DB":      "3",
		"UIMP_TOKEN_TTL":     "90m",
		"UIMP_COOKIE_SECURE": "false",
		"UIMP_LOG_FORMAT":    "json",
		"UIMP_METRICS_TOKEN": "scrape-me",

		"UIMP_METRICS_EXPORT_INTERVAL": "30s",
	}
	s := Default()
	if err := s.ApplyEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok }); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if s.Redis.Addr != "10.0.0.5:6379" || s.Redis.DB != 3 || s.Auth.TokenTTL != 90*time.Minute ||
		s.Auth.CookieSecure || s.Log.Format != "json" || s.MetricsToken != "scrape-me" ||
		s.MetricsExportInterval != 30*time.Second {
		t.Fatalf("env not applied: %+v", s)
	}

	bad := map[string]string{"UIMP_REDIS_DB": "three", "UIMP_METRICS": "maybe"}
	s = Default()
	if err := s.ApplyEnv(func(k string) (string, bool) { v, ok := bad[k]; return v, ok }); err == nil {
		t.Fatal("expected parse errors")
	}
}

func TestResolveLayering(t *testing.T) {
	cfgPath := writeFile(t, "uimp.yaml", "listen: \":7000\"\nlog:\n  level: warn\n")
	envPath := writeFile(t, ".env", "UIMP_LOG_LEVEL=debug\nUIMP_LISTEN=:7100\n")
	t.Cleanup(func() {
		os.Unsetenv("UIMP_LOG_LEVEL")
		os.Unsetenv("UIMP_LISTEN")
	})

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	s, err := Resolve(fs, []string{"-config", cfgPath, "-env", envPath, "-listen", ":7200", "-insecure-cookie"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if s.Listen != ":7200" {
		t.Fatalf("flag should win, got %q", s.Listen)
	}
	if s.Log.Level != "debug" {
		t.Fatalf("env should beat file, got %q", s.Log.Level)
	}
	if s.Auth.CookieSecure {
		t.Fatal("expected insecure cookie")
	}
}

func TestResolveMissingDotEnvIsFine(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	if _, err := Resolve(fs, []string{"-env", filepath.Join(t.TempDir(), "none.env")}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
}

func TestValidate(t *testing.T) {
	s := Default()
	s.Users.Driver = "postgres"
	if err := s.Validate(); err == nil {
		t.Fatal("expected driver error")
	}

	s = Default()
	s.MetricsExportInterval = -time.Second
	if err := s.Validate(); err == nil {
		t.Fatal("expected negative export interval error")
	}
}

func TestEngineConfigEphemeralKeys(t *testing.T) {
	s := Default()
	cfg, ephemeral, err := s.EngineConfig()
	if err != nil {
		t.Fatalf("engine config: %v", err)
	}
	if !ephemeral || len(cfg.JWT.PublicKey) != ed25519.PublicKeySize {
		t.Fatalf("expected generated ed25519 keys, got ephemeral=%v", ephemeral)
	}
	if cfg.ValidationMode != portalguard.ModeStrict {
		t.Fatalf("expected strict mode, got %v", cfg.ValidationMode)
	}
}

func TestEngineConfigDerivesPublicKeyFromPEM(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	keyPath := writeFile(t, "key.pem", string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})))

	s := Default()
	s.Auth.PrivateKeyFile = keyPath
	cfg, ephemeral, err := s.EngineConfig()
	if err != nil {
		t.Fatalf("engine config: %v", err)
	}
	if ephemeral || !pub.Equal(ed25519.PublicKey(cfg.JWT.PublicKey)) {
		t.Fatal("public key not derived from private key")
	}
}

func TestEngineConfigHS256NeedsSecret(t *testing.T) {
	s := Default()
	s.Auth.SigningMethod = "hs256"
	if _, _, err := s.EngineConfig(); err == nil {
		t.Fatal("expected missing secret error")
	}
	s.Auth.Secret = "0123456789abcdef0123456789abcdef"
	if _, _, err := s.EngineConfig(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
