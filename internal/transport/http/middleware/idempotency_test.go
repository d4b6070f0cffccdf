package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestRequestHashDeterministic(t *testing.T) {
	hash1 := RequestHash([]byte("payload"))
	hash2 := RequestHash([]byte("payload"))
	hash3 := RequestHash([]byte("other"))

	if hash1 != hash2 {
		t.Fatal("expected deterministic hash")
	}
	if hash1 == hash3 {
		t.Fatal("expected different hash for different payload")
	}
}

func TestIdempotencyStoreMemoryReplay(t *testing.T) {
	ctx := context.Background()
	store := NewIdempotencyStore(nil)
	hash := RequestHash([]byte("run:7"))

	if _, found, err := store.Check(ctx, "u1", "payroll.disburse", "key-1", hash); err != nil || found {
		t.Fatalf("expected miss, got found=%v err=%v", found, err)
	}
	if err := store.Save(ctx, "u1", "payroll.disburse", "key-1", hash, json.RawMessage(`{"id":"b1"}`)); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	stored, found, err := store.Check(ctx, "u1", "payroll.disburse", "key-1", hash)
	if err != nil || !found {
		t.Fatalf("expected replay, got found=%v err=%v", found, err)
	}
	if string(stored) != `{"id":"b1"}` {
		t.Fatalf("unexpected stored response %s", stored)
	}

	if _, _, err := store.Check(ctx, "u1", "payroll.disburse", "key-1", RequestHash([]byte("run:8"))); !errors.Is(err, ErrIdempotencyConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, found, _ := store.Check(ctx, "u2", "payroll.disburse", "key-1", hash); found {
		t.Fatal("expected keys to be scoped per user")
	}
}
