package authcore

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials covers both a wrong password and a nonexistent
	// account, so callers cannot enumerate registered emails.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked means login is refused until the lockout window passes.
	ErrAccountLocked = errors.New("account temporarily locked")
	// ErrAccountBlocked means the account is not active (disabled or deleted).
	ErrAccountBlocked = errors.New("account blocked")
	// ErrAccountExists is returned by registration for a duplicate email.
	// UserProvider implementations must return it from CreateUser.
	ErrAccountExists = errors.New("account already exists")
	// ErrUserNotFound must be returned by UserProvider lookups for unknown
	// users; the engine maps it to ErrInvalidCredentials on login paths.
	ErrUserNotFound = errors.New("user not found")

	ErrTokenExpired   = errors.New("token expired")
	ErrTokenInvalid   = errors.New("token invalid")
	ErrTokenWrongType = errors.New("token type mismatch")
	// ErrTokenRevoked means the token id is blacklisted or its record was
	// already consumed by a concurrent rotation.
	ErrTokenRevoked = errors.New("token revoked")

	// ErrOTPInvalidFormat rejects malformed codes before any store access.
	ErrOTPInvalidFormat = errors.New("otp code malformed")
	// ErrOTPExpired covers a missing, expired, superseded, or already used code.
	ErrOTPExpired          = errors.New("otp expired or missing")
	ErrOTPAttemptsExceeded = errors.New("otp attempts exceeded")
	ErrOTPMismatch         = errors.New("otp code mismatch")

	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrPasswordReuse rejects a password change to the current password.
	ErrPasswordReuse = errors.New("new password must differ from current password")

	// ErrStoreUnavailable wraps Redis connectivity failures. It is distinct
	// from every domain error above: a gating check that cannot run fails
	// with this, it does not silently pass.
	ErrStoreUnavailable = errors.New("credential store unavailable")

	ErrUnknownRateLimitScope = errors.New("unknown rate limit scope")
)

// OTPMismatchError is returned for a wrong code while attempts remain in
// the budget. It unwraps to [ErrOTPMismatch].
type OTPMismatchError struct {
	AttemptsRemaining int
}

func (e *OTPMismatchError) Error() string {
	return fmt.Sprintf("otp code mismatch, %d attempts remaining", e.AttemptsRemaining)
}

func (e *OTPMismatchError) Unwrap() error { return ErrOTPMismatch }

// RateLimitError reports a blocked attempt together with the window state
// the caller must surface (attempts, budget, reset time). It unwraps to
// [ErrRateLimited].
type RateLimitError struct {
	Scope  string
	Status RateLimitStatus
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s: %d/%d attempts, resets %s",
		e.Scope, e.Status.Attempts, e.Status.MaxAttempts, e.Status.ResetTime.Format(time.RFC3339))
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

func storeErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
