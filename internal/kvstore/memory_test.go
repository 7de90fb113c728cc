package kvstore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStoreGetSetDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := store.Set(ctx, "k", []byte("v1"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "v1" {
		t.Fatalf("expected v1, got %q", got)
	}

	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemoryStoreTTLExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.Set(ctx, "k", []byte("v"), time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := store.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expiry to produce ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	// create: key absent, expected nil
	if err := store.CompareAndSwap(ctx, "k", nil, []byte("v1"), 0); err != nil {
		t.Fatalf("cas create: %v", err)
	}

	// mismatch: wrong expected value
	err := store.CompareAndSwap(ctx, "k", []byte("wrong"), []byte("v2"), 0)
	if !errors.Is(err, ErrCASMismatch) {
		t.Fatalf("expected ErrCASMismatch, got %v", err)
	}

	// correct swap
	if err := store.CompareAndSwap(ctx, "k", []byte("v1"), []byte("v2"), 0); err != nil {
		t.Fatalf("cas swap: %v", err)
	}
	got, _ := store.Get(ctx, "k")
	if string(got) != "v2" {
		t.Fatalf("expected v2, got %q", got)
	}

	// re-create on already-present key must fail
	if err := store.CompareAndSwap(ctx, "other", nil, []byte("x"), 0); err != nil {
		t.Fatalf("cas create other: %v", err)
	}
	if err := store.CompareAndSwap(ctx, "other", nil, []byte("y"), 0); !errors.Is(err, ErrCASMismatch) {
		t.Fatalf("expected ErrCASMismatch on double-create, got %v", err)
	}
}
