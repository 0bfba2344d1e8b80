package kv

import (
	"context"
	"testing"
	"time"
)

func TestMemoryPutGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	if err := s.Put(ctx, "presence:p1:a1", []byte("ts"), time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}
	v, ok, err := s.Get(ctx, "presence:p1:a1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if string(v) != "ts" {
		t.Fatalf("got %q", v)
	}

	_, ok, err = s.Get(ctx, "missing")
	if err != nil || ok {
		t.Fatalf("expected miss, ok=%v err=%v", ok, err)
	}
}

func TestMemoryTTLExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	now := time.Now()
	s.SetClock(func() time.Time { return now })

	if err := s.Put(ctx, "k", []byte("v"), 30*time.Second); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "k"); !ok {
		t.Fatal("key should be live before TTL")
	}

	now = now.Add(31 * time.Second)
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatal("key should have expired")
	}
}

func TestMemoryZeroTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	now := time.Now()
	s.SetClock(func() time.Time { return now })

	if err := s.Put(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("put: %v", err)
	}
	now = now.Add(24 * time.Hour)
	if _, ok, _ := s.Get(ctx, "k"); !ok {
		t.Fatal("zero-ttl key must not expire")
	}
}

func TestMemoryKeysPrefix(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	now := time.Now()
	s.SetClock(func() time.Time { return now })

	_ = s.Put(ctx, "waiting:s1:a1", nil, time.Minute)
	_ = s.Put(ctx, "waiting:s1:a2", nil, time.Second)
	_ = s.Put(ctx, "waiting:s2:a1", nil, time.Minute)

	now = now.Add(2 * time.Second)
	keys, err := s.Keys(ctx, "waiting:s1:")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 1 || keys[0] != "waiting:s1:a1" {
		t.Fatalf("got %v", keys)
	}
}

func TestMemoryDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	_ = s.Put(ctx, "k", []byte("v"), 0)
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatal("key should be gone")
	}
	// deleting an absent key is a no-op
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open("redis://localhost:6379"); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
	if _, err := Open("memory://"); err != nil {
		t.Fatalf("memory driver: %v", err)
	}
}
