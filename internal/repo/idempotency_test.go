package repo

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestIdempotency_CreateAndGet(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	rec, err := CreateIdempotency(ctx, db, "u1", "key-1", "msg-1", 200, time.Hour)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.ID == "" || rec.ExpiresAt.Before(rec.CreatedAt) {
		t.Fatalf("record: %+v", rec)
	}

	got, err := GetIdempotency(ctx, db, "u1", "key-1", time.Now().UTC())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.MessageID != "msg-1" || got.Status != 200 {
		t.Fatalf("roundtrip: %+v", got)
	}
}

func TestIdempotency_Get_MissAndBlankKey(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := GetIdempotency(ctx, db, "u1", "nope", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("miss err = %v, want ErrNotFound", err)
	}
	if _, err := GetIdempotency(ctx, db, "u1", "   ", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("blank key err = %v, want ErrNotFound", err)
	}
}

func TestIdempotency_Get_ExpiredRecordInvisible(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := CreateIdempotency(ctx, db, "u1", "key-1", "msg-1", 200, time.Minute); err != nil {
		t.Fatalf("create: %v", err)
	}

	// a lookup clock past expiry must not see the record
	future := time.Now().UTC().Add(2 * time.Minute)
	if _, err := GetIdempotency(ctx, db, "u1", "key-1", future); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired err = %v, want ErrNotFound", err)
	}
}

func TestIdempotency_Create_DuplicateKey(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := CreateIdempotency(ctx, db, "u1", "key-1", "msg-1", 200, time.Hour); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := CreateIdempotency(ctx, db, "u1", "key-1", "msg-2", 200, time.Hour); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate err = %v, want ErrDuplicate", err)
	}

	// same key under a different user is a distinct record
	if _, err := CreateIdempotency(ctx, db, "u2", "key-1", "msg-3", 200, time.Hour); err != nil {
		t.Fatalf("other user create: %v", err)
	}
}
