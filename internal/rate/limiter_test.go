package rate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T) (*miniredis.Miniredis, *Limiter) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return mr, New(rdb)
}

func TestHitBlocksAfterMax(t *testing.T) {
	_, l := newTestLimiter(t)
	ctx := context.Background()
	w := Window{Max: 5, Period: 15 * time.Minute}

	start := time.Now()
	for i := 1; i <= 5; i++ {
		status, err := l.Hit(ctx, "login", "a@b.com", w)
		if err != nil {
			t.Fatalf("Hit %d failed: %v", i, err)
		}
		if status.Blocked {
			t.Fatalf("attempt %d unexpectedly blocked", i)
		}
		if status.Attempts != i {
			t.Fatalf("attempt %d: got count %d", i, status.Attempts)
		}
	}

	status, err := l.Hit(ctx, "login", "a@b.com", w)
	if err != nil {
		t.Fatalf("Hit 6 failed: %v", err)
	}
	if !status.Blocked {
		t.Fatal("attempt 6 should be blocked")
	}
	if status.MaxAttempts != 5 {
		t.Fatalf("expected MaxAttempts 5, got %d", status.MaxAttempts)
	}

	reset := status.ResetTime.Sub(start)
	if reset < 14*time.Minute || reset > 16*time.Minute {
		t.Fatalf("expected reset ~15m after first hit, got %v", reset)
	}
}

func TestWindowExpiryForgivesAttempts(t *testing.T) {
	mr, l := newTestLimiter(t)
	ctx := context.Background()
	w := Window{Max: 2, Period: time.Minute}

	for i := 0; i < 3; i++ {
		if _, err := l.Hit(ctx, "otp_send", "a@b.com", w); err != nil {
			t.Fatalf("Hit failed: %v", err)
		}
	}

	mr.FastForward(time.Minute + time.Second)

	status, err := l.Hit(ctx, "otp_send", "a@b.com", w)
	if err != nil {
		t.Fatalf("Hit after window failed: %v", err)
	}
	if status.Blocked || status.Attempts != 1 {
		t.Fatalf("expected fresh window, got %+v", status)
	}
}

func TestScopesAndIdentifiersAreIndependent(t *testing.T) {
	_, l := newTestLimiter(t)
	ctx := context.Background()
	w := Window{Max: 1, Period: time.Minute}

	if _, err := l.Hit(ctx, "login", "a@b.com", w); err != nil {
		t.Fatalf("Hit failed: %v", err)
	}

	status, err := l.Hit(ctx, "otp_send", "a@b.com", w)
	if err != nil {
		t.Fatalf("Hit failed: %v", err)
	}
	if status.Attempts != 1 {
		t.Fatalf("expected independent scope counter, got %d", status.Attempts)
	}

	status, err = l.Hit(ctx, "login", "c@d.com", w)
	if err != nil {
		t.Fatalf("Hit failed: %v", err)
	}
	if status.Attempts != 1 {
		t.Fatalf("expected independent identifier counter, got %d", status.Attempts)
	}
}

func TestResetClearsCounter(t *testing.T) {
	_, l := newTestLimiter(t)
	ctx := context.Background()
	w := Window{Max: 1, Period: time.Minute}

	for i := 0; i < 3; i++ {
		if _, err := l.Hit(ctx, "login", "a@b.com", w); err != nil {
			t.Fatalf("Hit failed: %v", err)
		}
	}
	if err := l.Reset(ctx, "login", "a@b.com"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	status, err := l.Peek(ctx, "login", "a@b.com", w)
	if err != nil {
		t.Fatalf("Peek failed: %v", err)
	}
	if status.Attempts != 0 || status.Blocked {
		t.Fatalf("expected cleared counter, got %+v", status)
	}
}

func TestPeekDoesNotConsume(t *testing.T) {
	_, l := newTestLimiter(t)
	ctx := context.Background()
	w := Window{Max: 5, Period: time.Minute}

	if _, err := l.Hit(ctx, "login", "a@b.com", w); err != nil {
		t.Fatalf("Hit failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		status, err := l.Peek(ctx, "login", "a@b.com", w)
		if err != nil {
			t.Fatalf("Peek failed: %v", err)
		}
		if status.Attempts != 1 {
			t.Fatalf("Peek mutated counter: %+v", status)
		}
	}
}
