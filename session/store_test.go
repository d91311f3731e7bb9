package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newSessionStoreTest(t *testing.T) (*Store, *miniredis.Miniredis, *redis.Client) {
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
	return NewStore(rdb, "ps"), mr, rdb
}

func testSession(sid, uid string) *Session {
	now := time.Now()
	return &Session{
		SessionID: sid,
		UserID:    uid,
		Email:     uid + "@uimp.test",
		Role:      2,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(time.Hour).Unix(),
	}
}

func TestSaveGetDelete(t *testing.T) {
	store, _, _ := newSessionStoreTest(t)
	ctx := context.Background()
	sess := testSession("sid-1", "u-1")

	if err := store.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Get(ctx, "sid-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.UserID != "u-1" || got.Email != "u-1@uimp.test" || got.Role != 2 || got.SessionID != "sid-1" {
		t.Fatalf("unexpected session: %+v", got)
	}
	if n, _ := store.Count(ctx); n != 1 {
		t.Fatalf("expected count 1, got %d", n)
	}

	if err := store.Delete(ctx, "sid-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, "sid-1"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if _, err := store.Get(ctx, "sid-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if n, _ := store.Count(ctx); n != 0 {
		t.Fatalf("expected count 0 after idempotent delete, got %d", n)
	}
	ids, err := store.ActiveSessionIDs(ctx, "u-1")
	if err != nil {
		t.Fatalf("ids: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected empty index, got %v", ids)
	}
}

func TestGetExpiredSessionIsRemoved(t *testing.T) {
	store, _, _ := newSessionStoreTest(t)
	ctx := context.Background()
	sess := testSession("sid-old", "u-1")
	sess.ExpiresAt = time.Now().Add(-time.Second).Unix()

	if err := store.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := store.Get(ctx, "sid-old"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if n, _ := store.Count(ctx); n != 0 {
		t.Fatalf("expected count 0, got %d", n)
	}
}

func TestRedisTTLExpiresSession(t *testing.T) {
	store, mr, _ := newSessionStoreTest(t)
	ctx := context.Background()
	if err := store.Save(ctx, testSession("sid-ttl", "u-1"), time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, err := store.Get(ctx, "sid-ttl"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after ttl, got %v", err)
	}
}

func TestDeleteAllForUser(t *testing.T) {
	store, _, _ := newSessionStoreTest(t)
	ctx := context.Background()
	for _, sid := range []string{"a", "b", "c"} {
		if err := store.Save(ctx, testSession(sid, "u-1"), time.Hour); err != nil {
			t.Fatalf("save %s: %v", sid, err)
		}
	}
	if err := store.Save(ctx, testSession("other", "u-2"), time.Hour); err != nil {
		t.Fatalf("save other: %v", err)
	}

	removed, err := store.DeleteAllForUser(ctx, "u-1")
	if err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 removed, got %d", removed)
	}
	for _, sid := range []string{"a", "b", "c"} {
		if _, err := store.Get(ctx, sid); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected %s gone, got %v", sid, err)
		}
	}
	if _, err := store.Get(ctx, "other"); err != nil {
		t.Fatalf("other user's session should survive: %v", err)
	}
	if n, _ := store.Count(ctx); n != 1 {
		t.Fatalf("expected count 1, got %d", n)
	}
}

func TestStoreRedisDownWrapsError(t *testing.T) {
	store, mr, _ := newSessionStoreTest(t)
	mr.Close()
	ctx := context.Background()

	if _, err := store.Get(ctx, "sid"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
	if err := store.Save(ctx, testSession("sid", "u"), time.Hour); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable on save, got %v", err)
	}
	if _, err := store.Ping(ctx); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable on ping, got %v", err)
	}
}

func TestSaveRejectsIncompleteSession(t *testing.T) {
	store, _, _ := newSessionStoreTest(t)
	if err := store.Save(context.Background(), &Session{UserID: "u"}, time.Hour); err == nil {
		t.Fatal("expected missing session id to fail")
	}
	if err := store.Save(context.Background(), testSession("s", "u"), 0); err == nil {
		t.Fatal("expected zero ttl to fail")
	}
}
