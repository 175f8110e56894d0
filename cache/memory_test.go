package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemorySetIfAbsent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	created, err := m.SetIfAbsent(ctx, "k", "a", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Fatal("first SetIfAbsent should create the key")
	}

	created, err = m.SetIfAbsent(ctx, "k", "b", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Fatal("second SetIfAbsent should report the key as existing")
	}

	v, err := m.Get(ctx, "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "a" {
		t.Fatalf("value overwritten by losing SetIfAbsent: got %q", v)
	}
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.Now = func() time.Time { return now }

	if err := m.Set(ctx, "k", "v", 300*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	now = now.Add(299 * time.Second)
	if _, err := m.Get(ctx, "k"); err != nil {
		t.Fatalf("key expired too early: %v", err)
	}

	now = now.Add(2 * time.Second)
	if _, err := m.Get(ctx, "k"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after ttl, got %v", err)
	}

	// A fresh SetIfAbsent must succeed once the old marker is gone.
	created, err := m.SetIfAbsent(ctx, "k", "v2", time.Minute)
	if err != nil || !created {
		t.Fatalf("expected create after expiry, got created=%v err=%v", created, err)
	}
}

func TestMemorySetOverwrites(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_ = m.Set(ctx, "k", "1", time.Minute)
	_ = m.Set(ctx, "k", "2", time.Minute)

	v, _ := m.Get(ctx, "k")
	if v != "2" {
		t.Fatalf("Set should overwrite, got %q", v)
	}
}
