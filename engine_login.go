package authcore

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Register creates an account with an argon2id password hash and returns
// the stored record. Duplicate emails fail with ErrAccountExists.
func (e *Engine) Register(ctx context.Context, email, plainPassword, role string) (*UserRecord, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	email = normalizeEmail(email)
	if email == "" {
		return nil, errors.New("email is required")
	}

	hash, err := e.passwordHash.Hash(plainPassword)
	if err != nil {
		return nil, err
	}

	user := &UserRecord{
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Status:       StatusActive,
	}

	createCtx, cancel := e.opCtx(ctx)
	defer cancel()
	if err := e.userProvider.CreateUser(createCtx, user); err != nil {
		if errors.Is(err, ErrAccountExists) {
			return nil, ErrAccountExists
		}
		return nil, storeErr(err)
	}

	e.emitEvent(ctx, AuditEvent{
		EventType: EventRegistration,
		SubjectID: user.ID,
		Email:     email,
		Success:   true,
	})

	return user, nil
}

// Login checks credentials and issues a token pair. The order of gates
// is fixed: rate limit window, account lookup, account status, lockout
// window, then the password comparison. A locked account never reaches
// the comparison, so lockout also caps hash work under attack.
func (e *Engine) Login(ctx context.Context, email, plainPassword string, device DeviceMetadata) (*LoginResult, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	email = normalizeEmail(email)

	if err := e.hitLimiter(ctx, ScopeLogin, email, EventLoginRateLimited); err != nil {
		return nil, err
	}

	lookupCtx, cancel := e.opCtx(ctx)
	user, err := e.userProvider.GetUserByEmail(lookupCtx, email)
	cancel()
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.emitLoginFailure(ctx, "", email, device, "unknown account")
			return nil, ErrInvalidCredentials
		}
		return nil, storeErr(err)
	}

	if user.Status != StatusActive {
		e.emitLoginFailure(ctx, user.ID, email, device, "account not active")
		return nil, ErrAccountBlocked
	}

	now := time.Now()
	if now.Before(user.BlockedUntil) {
		e.emitLoginFailure(ctx, user.ID, email, device, "account locked")
		return nil, ErrAccountLocked
	}

	ok, err := e.passwordHash.Verify(plainPassword, user.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		e.recordFailedLogin(ctx, user, email, device)
		return nil, ErrInvalidCredentials
	}

	// Success clears the guard unconditionally and forgives the window.
	if user.FailedLoginAttempts > 0 || !user.BlockedUntil.IsZero() {
		guardCtx, cancel := e.opCtx(ctx)
		_ = e.userProvider.UpdateLoginGuard(guardCtx, user.ID, 0, time.Time{})
		cancel()
		user.FailedLoginAttempts = 0
		user.BlockedUntil = time.Time{}
	}

	resetCtx, cancel := e.opCtx(ctx)
	_ = e.rateLimiter.Reset(resetCtx, ScopeLogin, email)
	cancel()

	pair, _, err := e.issuePair(ctx, user.ID, user.Role, device)
	if err != nil {
		return nil, err
	}

	e.emitEvent(ctx, AuditEvent{
		EventType: EventLoginSuccess,
		SubjectID: user.ID,
		Email:     email,
		IP:        device.IP,
		Success:   true,
	})

	return &LoginResult{User: user, Tokens: pair}, nil
}

// recordFailedLogin advances the lockout guard after a wrong password.
// Crossing the threshold sets BlockedUntil and resets the counter so the
// next window starts clean when the block lapses.
func (e *Engine) recordFailedLogin(ctx context.Context, user *UserRecord, email string, device DeviceMetadata) {
	e.emitLoginFailure(ctx, user.ID, email, device, "wrong password")

	if e.config.Lockout.Threshold <= 0 {
		return
	}

	attempts := user.FailedLoginAttempts + 1
	blockedUntil := time.Time{}
	if attempts >= e.config.Lockout.Threshold {
		blockedUntil = time.Now().Add(e.config.Lockout.Duration)
		attempts = 0
	}

	guardCtx, cancel := e.opCtx(ctx)
	_ = e.userProvider.UpdateLoginGuard(guardCtx, user.ID, attempts, blockedUntil)
	cancel()

	if !blockedUntil.IsZero() {
		e.emitEvent(ctx, AuditEvent{
			EventType: EventAccountLockout,
			SubjectID: user.ID,
			Email:     email,
			IP:        device.IP,
			Success:   false,
			Metadata:  map[string]string{"blocked_until": blockedUntil.UTC().Format(time.RFC3339)},
		})
	}
}

func (e *Engine) emitLoginFailure(ctx context.Context, subjectID, email string, device DeviceMetadata, reason string) {
	e.emitEvent(ctx, AuditEvent{
		EventType: EventLoginFailure,
		SubjectID: subjectID,
		Email:     email,
		IP:        device.IP,
		Success:   false,
		Error:     reason,
	})
}

// ChangePassword verifies the current password, rejects reuse, stores a
// new hash, and revokes every outstanding refresh token of the subject.
func (e *Engine) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if err := e.checkOpen(); err != nil {
		return err
	}

	lookupCtx, cancel := e.opCtx(ctx)
	user, err := e.userProvider.GetUserByID(lookupCtx, userID)
	cancel()
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		return storeErr(err)
	}
	if user.Status != StatusActive {
		return ErrAccountBlocked
	}

	ok, err := e.passwordHash.Verify(currentPassword, user.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCredentials
	}
	if currentPassword == newPassword {
		return ErrPasswordReuse
	}

	hash, err := e.passwordHash.Hash(newPassword)
	if err != nil {
		return err
	}

	updateCtx, cancel := e.opCtx(ctx)
	err = e.userProvider.UpdatePasswordHash(updateCtx, user.ID, hash)
	cancel()
	if err != nil {
		return storeErr(err)
	}

	// Outstanding sessions die with the old password. Best-effort: the
	// password change itself already succeeded.
	_ = e.RevokeAllForSubject(ctx, user.ID)

	e.emitEvent(ctx, AuditEvent{
		EventType: EventPasswordChanged,
		SubjectID: user.ID,
		Email:     user.Email,
		Success:   true,
	})

	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
