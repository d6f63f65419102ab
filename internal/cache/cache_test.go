package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedis(rdb), mr
}

func TestSetGetDelete(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("get missing: ok=%v err=%v", ok, err)
	}
	if err := store.SetTTL(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok, err := store.Get(ctx, "k")
	if err != nil || !ok || v != "v" {
		t.Fatalf("get: v=%q ok=%v err=%v", v, ok, err)
	}
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "k"); ok {
		t.Fatal("key survived delete")
	}
}

func TestEntryExpires(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	if err := store.SetTTL(ctx, "otp", "482913", 5*time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	mr.FastForward(5*time.Minute + time.Second)
	if _, ok, _ := store.Get(ctx, "otp"); ok {
		t.Fatal("entry readable after expiry")
	}
}

func TestOverwriteRestartsTTL(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	if err := store.SetTTL(ctx, "otp", "111111", 5*time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	mr.FastForward(4 * time.Minute)
	if err := store.SetTTL(ctx, "otp", "222222", 5*time.Minute); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	mr.FastForward(4 * time.Minute)
	v, ok, _ := store.Get(ctx, "otp")
	if !ok || v != "222222" {
		t.Fatalf("want fresh value alive, got v=%q ok=%v", v, ok)
	}
}
