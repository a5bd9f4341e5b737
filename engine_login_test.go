package authcore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()

	user, err := env.engine.Register(ctx, "Alice@Example.com", "correct-horse", "user")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Email != "alice@example.com" {
		t.Fatalf("email not normalized: %q", user.Email)
	}
	if user.PasswordHash == "correct-horse" || user.PasswordHash == "" {
		t.Fatal("password stored unhashed")
	}

	res, err := env.engine.Login(ctx, "alice@example.com", "correct-horse", DeviceMetadata{IP: "10.0.0.1"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Tokens.AccessToken == "" || res.Tokens.RefreshToken == "" {
		t.Fatal("login returned incomplete pair")
	}

	claims, err := env.engine.VerifyAccess(ctx, res.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if claims.Subject != user.ID {
		t.Fatalf("claims subject = %q, want %q", claims.Subject, user.ID)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()

	if _, err := env.engine.Register(ctx, "alice@example.com", "correct-horse", ""); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := env.engine.Register(ctx, "alice@example.com", "other-password", ""); !errors.Is(err, ErrAccountExists) {
		t.Fatalf("duplicate register: %v, want ErrAccountExists", err)
	}
}

func TestLoginUnknownAndWrongPasswordLookAlike(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()
	env.seedUser(t, "alice@example.com", "correct-horse")

	_, unknownErr := env.engine.Login(ctx, "nobody@example.com", "whatever!", DeviceMetadata{})
	_, wrongErr := env.engine.Login(ctx, "alice@example.com", "wrong-password", DeviceMetadata{})

	if !errors.Is(unknownErr, ErrInvalidCredentials) {
		t.Errorf("unknown account: %v, want ErrInvalidCredentials", unknownErr)
	}
	if !errors.Is(wrongErr, ErrInvalidCredentials) {
		t.Errorf("wrong password: %v, want ErrInvalidCredentials", wrongErr)
	}
}

func TestLoginBlockedAccount(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()
	user := env.seedUser(t, "alice@example.com", "correct-horse")

	rec := env.provider.get(user.ID)
	rec.Status = StatusDisabled
	env.provider.put(rec)

	if _, err := env.engine.Login(ctx, "alice@example.com", "correct-horse", DeviceMetadata{}); !errors.Is(err, ErrAccountBlocked) {
		t.Fatalf("disabled account login: %v, want ErrAccountBlocked", err)
	}
}

func TestLockoutAfterConsecutiveFailures(t *testing.T) {
	env := newTestEngine(t, func(b *Builder) {
		b.WithLockout(3, time.Minute)
	})
	ctx := context.Background()
	user := env.seedUser(t, "alice@example.com", "correct-horse")

	for i := 0; i < 3; i++ {
		if _, err := env.engine.Login(ctx, "alice@example.com", "wrong-password", DeviceMetadata{}); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("failure %d: %v, want ErrInvalidCredentials", i, err)
		}
	}

	rec := env.provider.get(user.ID)
	if rec.BlockedUntil.IsZero() {
		t.Fatal("third failure did not set blocked-until")
	}

	// The correct password is refused without being checked.
	if _, err := env.engine.Login(ctx, "alice@example.com", "correct-horse", DeviceMetadata{}); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("locked login: %v, want ErrAccountLocked", err)
	}
}

func TestLoginSuccessClearsGuardAndWindow(t *testing.T) {
	env := newTestEngine(t, func(b *Builder) {
		b.WithLockout(10, time.Minute)
	})
	ctx := context.Background()
	user := env.seedUser(t, "alice@example.com", "correct-horse")

	for i := 0; i < 3; i++ {
		_, _ = env.engine.Login(ctx, "alice@example.com", "wrong-password", DeviceMetadata{})
	}
	if got := env.provider.get(user.ID).FailedLoginAttempts; got != 3 {
		t.Fatalf("failed attempts = %d, want 3", got)
	}

	if _, err := env.engine.Login(ctx, "alice@example.com", "correct-horse", DeviceMetadata{}); err != nil {
		t.Fatalf("Login: %v", err)
	}

	rec := env.provider.get(user.ID)
	if rec.FailedLoginAttempts != 0 || !rec.BlockedUntil.IsZero() {
		t.Fatalf("guard not cleared: attempts=%d blocked=%v", rec.FailedLoginAttempts, rec.BlockedUntil)
	}
	if env.mr.Exists("rate_limit:login:alice@example.com") {
		t.Error("login window survived a successful login")
	}
}

func TestLoginRateLimitWindow(t *testing.T) {
	env := newTestEngine(t, func(b *Builder) {
		b.WithLockout(100, time.Minute).
			WithRateLimitScope(ScopeLogin, RateWindow{Max: 3, Period: time.Minute})
	})
	ctx := context.Background()
	env.seedUser(t, "alice@example.com", "correct-horse")

	for i := 0; i < 3; i++ {
		_, _ = env.engine.Login(ctx, "alice@example.com", "wrong-password", DeviceMetadata{})
	}

	// Attempt four is blocked by the window even with correct credentials.
	_, err := env.engine.Login(ctx, "alice@example.com", "correct-horse", DeviceMetadata{})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("rate limited login: %v, want ErrRateLimited", err)
	}

	var rateErr *RateLimitError
	if !errors.As(err, &rateErr) {
		t.Fatalf("error type = %T, want *RateLimitError", err)
	}
	if rateErr.Status.MaxAttempts != 3 || !rateErr.Status.Blocked {
		t.Fatalf("status = %+v", rateErr.Status)
	}

	// The window lapses and login works again.
	env.mr.FastForward(time.Minute + time.Second)
	if _, err := env.engine.Login(ctx, "alice@example.com", "correct-horse", DeviceMetadata{}); err != nil {
		t.Fatalf("login after window: %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()
	user := env.seedUser(t, "alice@example.com", "correct-horse")

	pair, err := env.engine.IssueTokenPair(ctx, user.ID, user.Role, DeviceMetadata{})
	if err != nil {
		t.Fatalf("IssueTokenPair: %v", err)
	}

	if err := env.engine.ChangePassword(ctx, user.ID, "wrong-password", "new-password-1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong current password: %v, want ErrInvalidCredentials", err)
	}
	if err := env.engine.ChangePassword(ctx, user.ID, "correct-horse", "correct-horse"); !errors.Is(err, ErrPasswordReuse) {
		t.Fatalf("password reuse: %v, want ErrPasswordReuse", err)
	}

	if err := env.engine.ChangePassword(ctx, user.ID, "correct-horse", "new-password-1"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	// Old sessions are gone, old password is gone, new password works.
	if _, err := env.engine.VerifyRefresh(ctx, pair.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Errorf("old refresh after change: %v, want ErrTokenRevoked", err)
	}
	if _, err := env.engine.Login(ctx, "alice@example.com", "correct-horse", DeviceMetadata{}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("old password login: %v, want ErrInvalidCredentials", err)
	}
	if _, err := env.engine.Login(ctx, "alice@example.com", "new-password-1", DeviceMetadata{}); err != nil {
		t.Errorf("new password login: %v", err)
	}
}
