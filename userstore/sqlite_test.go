package userstore_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/redis/go-redis/v9"

	"github.com/uimp/portalguard"
	"github.com/uimp/portalguard/role"
	"github.com/uimp/portalguard/userstore"
)

func newTestSQLite(t *testing.T) *userstore.SQLite {
	t.Helper()
	st, err := userstore.OpenSQLite(filepath.Join(t.TempDir(), "users.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestSQLiteCreateAndGet(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	created, err := st.CreateUser(ctx, " Mentor@UIMP.dev", "hash-1", role.Mentor)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.UserID == "" || created.Email != "mentor@uimp.dev" {
		t.Fatalf("unexpected record: %+v", created)
	}

	byEmail, err := st.GetUserByEmail(ctx, "MENTOR@uimp.dev")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if diff := cmp.Diff(created, byEmail); diff != "" {
		t.Fatalf("by email mismatch (-want +got):\n%s", diff)
	}
	byID, err := st.GetUserByID(ctx, created.UserID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if diff := cmp.Diff(created, byID); diff != "" {
		t.Fatalf("by id mismatch (-want +got):\n%s", diff)
	}

	if _, err := st.CreateUser(ctx, "mentor@uimp.dev", "x", role.Student); !errors.Is(err, userstore.ErrDuplicateEmail) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if _, err := st.CreateUser(ctx, "x@uimp.dev", "x", role.Unknown); !errors.Is(err, portalguard.ErrRoleInvalid) {
		t.Fatalf("expected role error, got %v", err)
	}
	if _, err := st.GetUserByEmail(ctx, "nobody@uimp.dev"); !errors.Is(err, portalguard.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestSQLiteUpdates(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	a, _ := st.CreateUser(ctx, "b@uimp.dev", "h", role.Student)
	b, _ := st.CreateUser(ctx, "a@uimp.dev", "h", role.Admin)

	if err := st.SetDisabled(ctx, a.UserID, true); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if err := st.SetRole(ctx, a.UserID, role.Mentor); err != nil {
		t.Fatalf("set role: %v", err)
	}
	if err := st.UpdatePasswordHash(ctx, b.UserID, "h2"); err != nil {
		t.Fatalf("update hash: %v", err)
	}
	if err := st.SetDisabled(ctx, "missing", true); !errors.Is(err, portalguard.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	users, err := st.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	a.Disabled, a.Role = true, role.Mentor
	b.PasswordHash = "h2"
	want := []portalguard.UserRecord{b, a}
	if diff := cmp.Diff(want, users, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("list mismatch (-want +got):\n%s", diff)
	}
}

func TestSQLiteBacksEngineLogin(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := portalguard.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory, cfg.Password.Time, cfg.Password.Parallelism = 8*1024, 1, 1

	st := newTestSQLite(t)
	engine, err := portalguard.New().WithConfig(cfg).WithRedis(rdb).WithUserProvider(st).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer engine.Close()

	hash, err := engine.HashPassword("correct horse battery")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u, err := st.CreateUser(context.Background(), "admin@uimp.dev", hash, role.Admin)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	res, err := engine.Login(context.Background(), "admin@uimp.dev", "correct horse battery")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.Identity.ID != u.UserID {
		t.Fatalf("unexpected identity %+v", res.Identity)
	}

	if err := st.SetDisabled(context.Background(), u.UserID, true); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if _, err := engine.Login(context.Background(), "admin@uimp.dev", "correct horse battery"); !errors.Is(err, portalguard.ErrAccountDisabled) {
		t.Fatalf("expected disabled, got %v", err)
	}
}
