package portal_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/uimp/portalguard"
	"github.com/uimp/portalguard/internal/portal"
	"github.com/uimp/portalguard/metrics/export/prometheus"
	"github.com/uimp/portalguard/role"
	"github.com/uimp/portalguard/userstore"
)

const (
	testPassword     = "correct horse battery staple"
	testMetricsToken = "scrape-token"
)

type harness struct {
	srv    *httptest.Server
	engine *portalguard.Engine
	mr     *miniredis.Miniredis
	users  *userstore.Memory
}

func newHarness(t *testing.T, checks map[string]func(context.Context) error) *harness {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	cfg := portalguard.DefaultConfig()
	cfg.JWT.PublicKey = pub
	cfg.JWT.PrivateKey = priv
	cfg.Cookie.Secure = false
	cfg.RateLimit.MaxLoginAttempts = 3
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	users := userstore.NewMemory()
	engine, err := portalguard.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(users).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	for _, r := range role.All() {
		hash, err := engine.HashPassword(testPassword)
		if err != nil {
			t.Fatalf("hash: %v", err)
		}
		if _, err := users.Add(portalguard.UserRecord{
			Email:        strings.ToLower(r.String()) + "@uimp.test",
			PasswordHash: hash,
			Role:         r,
		}); err != nil {
			t.Fatalf("add user: %v", err)
		}
	}

	srv := httptest.NewServer(portal.NewRouter(portal.Deps{
		Engine:  engine,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:      prometheus.New(engine).Handler(),
		MetricsToken: testMetricsToken,
		Checks:       checks,
	}))
	t.Cleanup(func() {
		srv.Close()
		engine.Close()
		rdb.Close()
		mr.Close()
	})
	return &harness{srv: srv, engine: engine, mr: mr, users: users}
}

// client follows no redirects so tests can inspect edge decisions.
func (h *harness) client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (h *harness) login(t *testing.T, c *http.Client, email, password, redirect string) (*http.Response, map[string]any) {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	url := h.srv.URL + "/api/auth/login"
	if redirect != "" {
		url += "?redirect=" + redirect
	}
	resp, err := c.Post(url, "application/json", strings.NewReader(string(body)))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func get(t *testing.T, c *http.Client, url string) *http.Response {
	t.Helper()
	resp, err := c.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	resp.Body.Close()
	return resp
}

func TestLoginThenNavigate(t *testing.T) {
	h := newHarness(t, nil)
	c := h.client(t)

	resp, out := h.login(t, c, "student@uimp.test", testPassword, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status %d: %v", resp.StatusCode, out)
	}
	if out["redirect"] != "/dashboard/user" {
		t.Fatalf("redirect = %v", out["redirect"])
	}
	var session *http.Cookie
	for _, ck := range resp.Cookies() {
		if ck.Name == h.engine.Cookie().Name {
			session = ck
		}
	}
	if session == nil || !session.HttpOnly || session.Value == "" {
		t.Fatalf("expected HttpOnly session cookie, got %+v", session)
	}

	if r := get(t, c, h.srv.URL+"/dashboard/user/applications"); r.StatusCode != http.StatusOK {
		t.Fatalf("own dashboard: status %d", r.StatusCode)
	}

	r := get(t, c, h.srv.URL+"/dashboard/admin")
	if r.StatusCode != http.StatusTemporaryRedirect || r.Header.Get("Location") != "/dashboard/user" {
		t.Fatalf("foreign dashboard: %d -> %q", r.StatusCode, r.Header.Get("Location"))
	}

	r = get(t, c, h.srv.URL+"/login")
	if r.StatusCode != http.StatusTemporaryRedirect || r.Header.Get("Location") != "/dashboard/user" {
		t.Fatalf("auth page bounce: %d -> %q", r.StatusCode, r.Header.Get("Location"))
	}
}

func TestLoginHonoursSafeRedirectOnly(t *testing.T) {
	h := newHarness(t, nil)

	tests := []struct {
		name, redirect, want string
	}{
		{"local page", "%2Fdashboard%2Fadmin%2Fusers", "/dashboard/admin/users"},
		{"scheme relative", "%2F%2Fevil.com", "/dashboard/admin"},
		{"absolute", "https%3A%2F%2Fevil.com", "/dashboard/admin"},
		{"auth page", "%2Flogin", "/dashboard/admin"},
		{"double encoded backslash", "%2F%255Cevil.com%2Fx", "/dashboard/admin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, out := h.login(t, h.client(t), "admin@uimp.test", testPassword, tt.redirect)
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status %d", resp.StatusCode)
			}
			if out["redirect"] != tt.want {
				t.Fatalf("redirect = %v, want %s", out["redirect"], tt.want)
			}
		})
	}
}

func TestLoginErrors(t *testing.T) {
	h := newHarness(t, nil)
	c := h.client(t)

	resp, _ := h.login(t, c, "student@uimp.test", "wrong password here", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong password: status %d", resp.StatusCode)
	}

	badBody, err := c.Post(h.srv.URL+"/api/auth/login", "application/json", strings.NewReader("{nope"))
	if err != nil {
		t.Fatal(err)
	}
	badBody.Body.Close()
	if badBody.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed body: status %d", badBody.StatusCode)
	}

	var last int
	for i := 0; i < 3; i++ {
		resp, _ := h.login(t, c, "mentor@uimp.test", "wrong password here", "")
		last = resp.StatusCode
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after repeated failures, got %d", last)
	}

	h.mr.Close()
	resp, _ = h.login(t, c, "admin@uimp.test", testPassword, "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("redis down: status %d", resp.StatusCode)
	}
}

func TestMeAndLogout(t *testing.T) {
	h := newHarness(t, nil)
	c := h.client(t)

	if r := get(t, c, h.srv.URL+"/api/auth/me"); r.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous me: status %d", r.StatusCode)
	}

	if resp, _ := h.login(t, c, "student@uimp.test", testPassword, ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("login status %d", resp.StatusCode)
	}

	resp, err := c.Get(h.srv.URL + "/api/auth/me")
	if err != nil {
		t.Fatal(err)
	}
	var me struct {
		User portalguard.Identity `json:"user"`
	}
	err = json.NewDecoder(resp.Body).Decode(&me)
	resp.Body.Close()
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("me: status %d err %v", resp.StatusCode, err)
	}
	if me.User.Role != role.Student || me.User.Email != "student@uimp.test" {
		t.Fatalf("unexpected identity %+v", me.User)
	}

	out, err := c.Post(h.srv.URL+"/api/auth/logout", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	out.Body.Close()
	if out.StatusCode != http.StatusOK {
		t.Fatalf("logout: status %d", out.StatusCode)
	}

	if r := get(t, c, h.srv.URL+"/api/auth/me"); r.StatusCode != http.StatusUnauthorized {
		t.Fatalf("me after logout: status %d", r.StatusCode)
	}
	r := get(t, c, h.srv.URL+"/dashboard/user")
	if r.StatusCode != http.StatusTemporaryRedirect || !strings.HasPrefix(r.Header.Get("Location"), "/login?redirect=") {
		t.Fatalf("dashboard after logout: %d -> %q", r.StatusCode, r.Header.Get("Location"))
	}
}

func TestLogoutAllRequiresIdentity(t *testing.T) {
	h := newHarness(t, nil)
	c := h.client(t)

	resp, err := c.Post(h.srv.URL+"/api/auth/logout-all", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous logout-all: status %d", resp.StatusCode)
	}

	h.login(t, c, "mentor@uimp.test", testPassword, "")
	h.login(t, h.client(t), "mentor@uimp.test", testPassword, "")

	resp, err = c.Post(h.srv.URL+"/api/auth/logout-all", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	var out map[string]int
	_ = json.NewDecoder(resp.Body).Decode(&out)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || out["sessions"] != 2 {
		t.Fatalf("logout-all: status %d body %v", resp.StatusCode, out)
	}
}

func TestPublicPagesServeAnonymous(t *testing.T) {
	h := newHarness(t, nil)
	for _, p := range []string{"/", "/about", "/login", "/signup"} {
		if r := get(t, h.client(t), h.srv.URL+p); r.StatusCode != http.StatusOK {
			t.Errorf("%s: status %d", p, r.StatusCode)
		}
	}
	r := get(t, h.client(t), h.srv.URL+"/api/unknown")
	if r.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown api path: status %d", r.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	failing := errors.New("sqlite closed")
	h := newHarness(t, map[string]func(context.Context) error{
		"users": func(context.Context) error { return failing },
	})

	resp, err := http.Get(h.srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	var body map[string]string
	_ = json.NewDecoder(resp.Body).Decode(&body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if body["sessions"] != "ok" || body["users"] != "unavailable" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t, nil)
	get(t, h.client(t), h.srv.URL+"/dashboard/admin")

	scrape := func(t *testing.T, c *http.Client, bearer string) (int, string) {
		t.Helper()
		req, err := http.NewRequest(http.MethodGet, h.srv.URL+"/metrics", nil)
		if err != nil {
			t.Fatal(err)
		}
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		resp, err := c.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(raw)
	}

	if code, _ := scrape(t, h.client(t), ""); code != http.StatusUnauthorized {
		t.Fatalf("anonymous scrape: status %d", code)
	}
	if code, _ := scrape(t, h.client(t), "wrong-token"); code != http.StatusUnauthorized {
		t.Fatalf("wrong token: status %d", code)
	}

	student := h.client(t)
	h.login(t, student, "student@uimp.test", testPassword, "")
	if code, _ := scrape(t, student, ""); code != http.StatusForbidden {
		t.Fatalf("student scrape: status %d", code)
	}

	admin := h.client(t)
	h.login(t, admin, "admin@uimp.test", testPassword, "")
	if code, _ := scrape(t, admin, ""); code != http.StatusOK {
		t.Fatalf("admin scrape: status %d", code)
	}

	code, body := scrape(t, h.client(t), testMetricsToken)
	if code != http.StatusOK {
		t.Fatalf("token scrape: status %d", code)
	}
	if !strings.Contains(body, `uimp_route_decisions_total{outcome="login"} 1`) {
		t.Fatalf("missing redirect counter in:\n%s", body)
	}
}
