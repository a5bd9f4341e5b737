package stores

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testOTPRecord(code string) *OTPRecord {
	now := time.Now()
	return &OTPRecord{
		Code:      code,
		Purpose:   "registration",
		CreatedAt: now,
		ExpiresAt: now.Add(5 * time.Minute),
	}
}

func TestOTPConsumeSuccess(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewOTPStore(rdb)
	ctx := context.Background()

	if err := store.Put(ctx, "a@b.com", testOTPRecord("482913")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if _, err := store.Consume(ctx, "a@b.com", "482913", 3); err != nil {
		t.Fatalf("Consume failed: %v", err)
	}

	// A consumed record is spent; the same code cannot verify twice.
	if _, err := store.Consume(ctx, "a@b.com", "482913", 3); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected ErrOTPNotFound on replay, got %v", err)
	}
}

func TestOTPKeyIsCaseInsensitive(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewOTPStore(rdb)
	ctx := context.Background()

	if err := store.Put(ctx, "A@B.com", testOTPRecord("482913")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := store.Consume(ctx, "a@b.COM", "482913", 3); err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
}

func TestOTPMismatchCountsAttemptsBeforeCompare(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewOTPStore(rdb)
	ctx := context.Background()

	if err := store.Put(ctx, "a@b.com", testOTPRecord("482913")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	remaining, err := store.Consume(ctx, "a@b.com", "000000", 3)
	if !errors.Is(err, ErrOTPCodeMismatch) {
		t.Fatalf("expected ErrOTPCodeMismatch, got %v", err)
	}
	if remaining != 2 {
		t.Fatalf("expected 2 attempts remaining, got %d", remaining)
	}

	record, err := store.Get(ctx, "a@b.com")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if record.Attempts != 1 {
		t.Fatalf("expected attempt recorded before compare, got %d", record.Attempts)
	}
}

func TestOTPExhaustionBlocksCorrectCode(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewOTPStore(rdb)
	ctx := context.Background()

	if err := store.Put(ctx, "a@b.com", testOTPRecord("482913")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	wrong := []string{"000000", "111111", "222222"}
	for i, guess := range wrong {
		remaining, err := store.Consume(ctx, "a@b.com", guess, 3)
		if !errors.Is(err, ErrOTPCodeMismatch) {
			t.Fatalf("guess %d: expected ErrOTPCodeMismatch, got %v", i+1, err)
		}
		if remaining != 3-(i+1) {
			t.Fatalf("guess %d: expected %d remaining, got %d", i+1, 3-(i+1), remaining)
		}
	}

	// Budget is spent: even the correct code must now be rejected.
	if _, err := store.Consume(ctx, "a@b.com", "482913", 3); !errors.Is(err, ErrOTPAttemptsExhausted) {
		t.Fatalf("expected ErrOTPAttemptsExhausted, got %v", err)
	}
}

func TestOTPExpiry(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewOTPStore(rdb)
	ctx := context.Background()

	if err := store.Put(ctx, "a@b.com", testOTPRecord("482913")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	mr.FastForward(6 * time.Minute)

	if _, err := store.Consume(ctx, "a@b.com", "482913", 3); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected ErrOTPNotFound after expiry, got %v", err)
	}
}

func TestOTPPutSupersedesPriorRecord(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewOTPStore(rdb)
	ctx := context.Background()

	if err := store.Put(ctx, "a@b.com", testOTPRecord("111111")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Put(ctx, "a@b.com", testOTPRecord("222222")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if _, err := store.Consume(ctx, "a@b.com", "111111", 3); !errors.Is(err, ErrOTPCodeMismatch) {
		t.Fatalf("superseded code should no longer verify, got %v", err)
	}
	if _, err := store.Consume(ctx, "a@b.com", "222222", 3); err != nil {
		t.Fatalf("latest code should verify, got %v", err)
	}
}

func TestOTPRecordRoundTrip(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewOTPStore(rdb)
	ctx := context.Background()

	record := testOTPRecord("482913")
	record.Purpose = "password_reset"
	if err := store.Put(ctx, "a@b.com", record); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get(ctx, "a@b.com")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Code != "482913" || got.Purpose != "password_reset" || got.Used || got.Attempts != 0 {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.ExpiresAt.Unix() != record.ExpiresAt.Unix() {
		t.Fatalf("expiry mismatch: %v vs %v", got.ExpiresAt, record.ExpiresAt)
	}
}
