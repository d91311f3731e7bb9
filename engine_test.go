package portalguard

import (
	"context"
	"fmt"
	"net/url"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/uimp/portalguard/role"
	"github.com/uimp/portalguard/route"
)

type fakeUsers struct {
	mu       sync.Mutex
	byEmail  map[string]UserRecord
	upgrades map[string]string
	err      error
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byEmail: map[string]UserRecord{}, upgrades: map[string]string{}}
}

func (f *fakeUsers) add(u UserRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byEmail[strings.ToLower(u.Email)] = u
}

func (f *fakeUsers) GetUserByEmail(_ context.Context, email string) (UserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return UserRecord{}, f.err
	}
	u, ok := f.byEmail[email]
	if !ok {
		return UserRecord{}, fmt.Errorf("%w: %s", ErrUserNotFound, email)
	}
	return u, nil
}

func (f *fakeUsers) GetUserByID(_ context.Context, id string) (UserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byEmail {
		if u.UserID == id {
			return u, nil
		}
	}
	return UserRecord{}, ErrUserNotFound
}

func (f *fakeUsers) UpdatePasswordHash(_ context.Context, id, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upgrades[id] = hash
	return nil
}

type testEnv struct {
	engine *Engine
	mr     *miniredis.Miniredis
	rdb    *redis.Client
	users  *fakeUsers
	audit  *ChannelSink
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})

	cfg := validConfig(t)
	if mutate != nil {
		mutate(&cfg)
	}
	users := newFakeUsers()
	sink := NewChannelSink(256)
	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(users).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)
	return &testEnv{engine: engine, mr: mr, rdb: rdb, users: users, audit: sink}
}

func (env *testEnv) token(t *testing.T, r role.Role) string {
	t.Helper()
	res, err := env.engine.Issue(context.Background(), Identity{ID: "u-" + strings.ToLower(r.String()), Role: r, Email: strings.ToLower(r.String()) + "@uimp.test"})
	if err != nil {
		t.Fatalf("issue %s: %v", r, err)
	}
	return res.Token
}

func protectedSamples(t *route.Table) []string {
	var out []string
	for _, c := range t.Entries() {
		if c.IsPublic() {
			continue
		}
		out = append(out, c.Prefix, c.Prefix+"/nested/page")
	}
	return append(out, "/unlisted", "/unlisted/deep/path", "/apiary", "/publications")
}

func TestProtectedPathsRedirectAnonymousToLogin(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	for _, tok := range []string{"", "garbage", "a.b.c"} {
		for _, p := range protectedSamples(env.engine.Routes()) {
			d := env.engine.Decide(ctx, p, tok)
			want := "/login?redirect=" + url.QueryEscape(p)
			if d.Allowed() || d.Location != want || d.Reason != ReasonUnauthenticated {
				t.Fatalf("path %q token %q: got %+v, want redirect %s", p, tok, d, want)
			}
			if d.Identity != nil || d.Headers() != nil {
				t.Fatalf("path %q: redirect must not carry identity", p)
			}
		}
	}
}

func TestPublicPathsAllowAnonymous(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, c := range env.engine.Routes().Entries() {
		if !c.IsPublic() || route.IsAuthPage(c.Prefix) {
			continue
		}
		d := env.engine.Decide(context.Background(), c.Prefix, "")
		if !d.Allowed() || d.Reason != ReasonPublic || d.Headers() != nil {
			t.Fatalf("public %q: got %+v", c.Prefix, d)
		}
	}
}

func TestDashboardAccessMatrix(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	for _, r := range role.All() {
		tok := env.token(t, r)
		own := role.Dashboard(r)

		d := env.engine.Decide(ctx, own, tok)
		if !d.Allowed() || d.Reason != ReasonAuthorized {
			t.Fatalf("%s on own dashboard %s: got %+v", r, own, d)
		}
		if d.Identity == nil || d.Identity.Role != r {
			t.Fatalf("%s: expected identity attached, got %+v", r, d.Identity)
		}

		for _, other := range role.All() {
			if other == r {
				continue
			}
			d := env.engine.Decide(ctx, role.Dashboard(other), tok)
			if d.Allowed() || d.Location != own || d.Reason != ReasonUnauthorized {
				t.Fatalf("%s on %s: got %+v, want redirect %s", r, role.Dashboard(other), d, own)
			}
		}
	}
}

func TestDecideScenarios(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	student := env.token(t, role.Student)
	mentor := env.token(t, role.Mentor)

	cases := []struct {
		name     string
		path     string
		token    string
		allowed  bool
		location string
		reason   Reason
	}{
		{"invalid token deep student path", "/dashboard/user/applications/new", "not-a-token", false, "/login?redirect=%2Fdashboard%2Fuser%2Fapplications%2Fnew", ReasonUnauthenticated},
		{"student on mentor dashboard", "/dashboard/mentor", student, false, "/dashboard/user", ReasonUnauthorized},
		{"mentor on login", "/login", mentor, false, "/dashboard/mentor", ReasonAlreadyAuthenticated},
		{"mentor on signup", "/signup", mentor, false, "/dashboard/mentor", ReasonAlreadyAuthenticated},
		{"anonymous about", "/about", "", true, "", ReasonPublic},
		{"anonymous login", "/login", "", true, "", ReasonPublic},
		{"bad token login", "/login", "garbage", true, "", ReasonPublic},
		{"student shared profile", "/profile", student, true, "", ReasonAuthorized},
		{"student trailing slash", "/dashboard/user/", student, true, "", ReasonAuthorized},
		{"root is public", "/", "", true, "", ReasonPublic},
		{"unlisted fails closed", "/secret-admin-tools", "", false, "/login?redirect=%2Fsecret-admin-tools", ReasonUnauthenticated},
		{"segment boundary", "/aboutx", "", false, "/login?redirect=%2Faboutx", ReasonUnauthenticated},
		{"dot segments", "/about/../dashboard/admin", student, false, "/dashboard/user", ReasonUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := env.engine.Decide(ctx, tc.path, tc.token)
			if d.Allowed() != tc.allowed || d.Location != tc.location || d.Reason != tc.reason {
				t.Fatalf("got %+v", d)
			}
		})
	}
}

func TestAnonymousPublicAddsNoHeaders(t *testing.T) {
	env := newTestEnv(t, nil)
	d := env.engine.Decide(context.Background(), "/about", "")
	if !d.Allowed() || d.Identity != nil || d.Headers() != nil {
		t.Fatalf("expected bare allow, got %+v", d)
	}
}

func TestAuthorizedAllowHeaders(t *testing.T) {
	env := newTestEnv(t, nil)
	d := env.engine.Decide(context.Background(), "/dashboard/admin/users", env.token(t, role.Admin))
	h := d.Headers()
	if h.Get(HeaderUserID) != "u-admin" || h.Get(HeaderUserRole) != "ADMIN" || h.Get(HeaderUserEmail) != "admin@uimp.test" {
		t.Fatalf("unexpected headers: %v", h)
	}
}

func TestDecideIdempotent(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	tokens := []string{"", "junk", env.token(t, role.Student), env.token(t, role.Admin)}
	paths := []string{"/", "/login", "/dashboard", "/dashboard/admin", "/dashboard/user/x", "/nowhere"}

	for _, tok := range tokens {
		for _, p := range paths {
			first := env.engine.Decide(ctx, p, tok)
			second := env.engine.Decide(ctx, p, tok)
			if first.Action != second.Action || first.Location != second.Location || first.Reason != second.Reason ||
				(first.Identity == nil) != (second.Identity == nil) {
				t.Fatalf("%q: decisions differ: %+v vs %+v", p, first, second)
			}
			if first.Identity != nil && *first.Identity != *second.Identity {
				t.Fatalf("%q: identities differ", p)
			}
		}
	}
}

func TestDecideConcurrent(t *testing.T) {
	env := newTestEnv(t, nil)
	tok := env.token(t, role.Mentor)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if d := env.engine.Decide(context.Background(), "/dashboard/mentor", tok); !d.Allowed() {
					t.Errorf("unexpected redirect: %+v", d)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestVerifyRejectsUnknownRole(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.ValidationMode = ModeJWTOnly })
	tok, _, err := env.engine.jwtManager.Issue(jwtSubject("u1", "COMPANY", "s1"))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if v := env.engine.Verify(context.Background(), tok); v.Valid {
		t.Fatalf("expected unknown role to be invalid, got %+v", v)
	}
	if d := env.engine.Decide(context.Background(), "/dashboard", tok); d.Allowed() {
		t.Fatalf("unknown role must not pass protected route: %+v", d)
	}
}

func TestStrictModeRevocationAfterLogout(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	tok := env.token(t, role.Student)

	if d := env.engine.Decide(ctx, "/dashboard/user", tok); !d.Allowed() {
		t.Fatalf("expected allow before logout: %+v", d)
	}
	if err := env.engine.Logout(ctx, tok); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := env.engine.Logout(ctx, tok); err != nil {
		t.Fatalf("second logout should be idempotent: %v", err)
	}
	d := env.engine.Decide(ctx, "/dashboard/user", tok)
	if d.Allowed() || d.Location != "/login?redirect=%2Fdashboard%2Fuser" {
		t.Fatalf("expected login redirect after logout, got %+v", d)
	}
	if d := env.engine.Decide(ctx, "/login", tok); !d.Allowed() {
		t.Fatalf("revoked token must not bounce away from login: %+v", d)
	}
}

func TestJWTOnlyModeIgnoresSessionStore(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.ValidationMode = ModeJWTOnly })
	ctx := context.Background()
	tok := env.token(t, role.Student)
	if err := env.engine.Logout(ctx, tok); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if d := env.engine.Decide(ctx, "/dashboard/user", tok); !d.Allowed() {
		t.Fatalf("jwt-only mode should not consult sessions: %+v", d)
	}
}

func TestStrictModeFailsClosedWhenRedisDown(t *testing.T) {
	env := newTestEnv(t, nil)
	tok := env.token(t, role.Admin)
	env.mr.Close()

	v := env.engine.Verify(context.Background(), tok)
	if v.Valid {
		t.Fatal("expected verification to fail closed when redis is down")
	}
	d := env.engine.Decide(context.Background(), "/dashboard/admin", tok)
	if d.Allowed() || d.Reason != ReasonUnauthenticated {
		t.Fatalf("expected login redirect, got %+v", d)
	}
}

func TestLogoutAllRevokesEverySession(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	a := env.token(t, role.Mentor)
	b := env.token(t, role.Mentor)

	n, err := env.engine.LogoutAll(ctx, "u-mentor")
	if err != nil {
		t.Fatalf("logout all: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 sessions removed, got %d", n)
	}
	for _, tok := range []string{a, b} {
		if v := env.engine.Verify(ctx, tok); v.Valid {
			t.Fatal("expected revoked token to be invalid")
		}
	}
}

func TestDecisionMetricsAndAudit(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.Audit.Enabled = true; c.Audit.DropIfFull = false })
	ctx := WithClientIP(context.Background(), "10.1.2.3")

	env.engine.Decide(ctx, "/about", "")
	env.engine.Decide(ctx, "/dashboard", "")
	env.engine.Decide(ctx, "/dashboard/mentor", env.token(t, role.Student))
	env.engine.Decide(ctx, "/login", env.token(t, role.Admin))

	snap := env.engine.MetricsSnapshot()
	if snap.Counters[MetricDecisionAllow] != 1 || snap.Counters[MetricRedirectLogin] != 1 ||
		snap.Counters[MetricRedirectDashboard] != 1 || snap.Counters[MetricRedirectAuthPage] != 1 {
		t.Fatalf("unexpected counters: %v", snap.Counters)
	}
	var total uint64
	for _, n := range snap.Histograms[MetricDecideLatency] {
		total += n
	}
	if total != 4 {
		t.Fatalf("expected 4 latency observations, got %d", total)
	}

	env.engine.Close()
	var redirects int
	for {
		select {
		case ev := <-env.audit.Events():
			if ev.EventType == AuditRedirect {
				redirects++
				if ev.IP != "10.1.2.3" {
					t.Fatalf("expected client ip on audit event, got %q", ev.IP)
				}
			}
			continue
		default:
		}
		break
	}
	if redirects != 3 {
		t.Fatalf("expected 3 redirect audit events, got %d", redirects)
	}
}

func TestBuildRejectsTableThatLocksOutADashboard(t *testing.T) {
	spec := route.DefaultSpec()
	spec.Protected["ADMIN"] = append(spec.Protected["ADMIN"], "/dashboard/user")
	spec.Protected["STUDENT"] = nil
	table, err := route.Compile(spec)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	_, err = New().WithConfig(func() Config { c := validConfig(t); c.ValidationMode = ModeJWTOnly; return c }()).WithRoutes(table).Build()
	if err == nil || !strings.Contains(err.Error(), "STUDENT") {
		t.Fatalf("expected dashboard reachability error, got %v", err)
	}
}

func TestFailedBuildLeavesNoAuditGoroutine(t *testing.T) {
	cfg := validConfig(t)
	cfg.ValidationMode = ModeJWTOnly
	cfg.Audit.Enabled = true
	cfg.JWT.PublicKey = []byte("not an ed25519 key")

	before := runtime.NumGoroutine()
	for range 50 {
		if _, err := New().WithConfig(cfg).Build(); err == nil {
			t.Fatal("expected build with a malformed public key to fail")
		}
	}
	if after := runtime.NumGoroutine(); after-before >= 25 {
		t.Fatalf("goroutines grew from %d to %d across failed builds", before, after)
	}
}

func TestBuildStrictRequiresRedis(t *testing.T) {
	if _, err := New().WithConfig(validConfig(t)).Build(); err == nil {
		t.Fatal("expected strict mode without redis to fail")
	}
	b := New().WithConfig(func() Config { c := validConfig(t); c.ValidationMode = ModeJWTOnly; return c }())
	e, err := b.Build()
	if err != nil {
		t.Fatalf("jwt-only without redis should build: %v", err)
	}
	if _, err := b.Build(); err == nil {
		t.Fatal("builder reuse must fail")
	}
	if _, err := e.Login(context.Background(), "a@b.c", "password123"); err != ErrEngineNotReady {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
}
