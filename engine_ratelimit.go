package authcore

import (
	"context"
)

// CheckRateLimit reports the state of one window without consuming an
// attempt. Unknown scopes fail with ErrUnknownRateLimitScope.
func (e *Engine) CheckRateLimit(ctx context.Context, scope, identifier string) (*RateLimitStatus, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	window, ok := e.config.RateLimit.Scopes[scope]
	if !ok {
		return nil, ErrUnknownRateLimitScope
	}

	peekCtx, cancel := e.opCtx(ctx)
	defer cancel()

	status, err := e.rateLimiter.Peek(peekCtx, scope, identifier, window)
	if err != nil {
		return nil, storeErr(err)
	}
	return status, nil
}

// HitRateLimit consumes one attempt in the window and reports the
// resulting state. Callers gate their operation on Status.Blocked.
func (e *Engine) HitRateLimit(ctx context.Context, scope, identifier string) (*RateLimitStatus, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	window, ok := e.config.RateLimit.Scopes[scope]
	if !ok {
		return nil, ErrUnknownRateLimitScope
	}

	hitCtx, cancel := e.opCtx(ctx)
	defer cancel()

	status, err := e.rateLimiter.Hit(hitCtx, scope, identifier, window)
	if err != nil {
		return nil, storeErr(err)
	}
	return status, nil
}

// ResetRateLimit clears a window outright, forgiving prior attempts.
func (e *Engine) ResetRateLimit(ctx context.Context, scope, identifier string) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	if _, ok := e.config.RateLimit.Scopes[scope]; !ok {
		return ErrUnknownRateLimitScope
	}

	resetCtx, cancel := e.opCtx(ctx)
	defer cancel()

	if err := e.rateLimiter.Reset(resetCtx, scope, identifier); err != nil {
		return storeErr(err)
	}
	return nil
}

// hitLimiter is the internal gate used by login and OTP send. A blocked
// window returns *RateLimitError and emits the given event type; an
// unreachable store fails the gate rather than waving the caller through.
func (e *Engine) hitLimiter(ctx context.Context, scope, identifier, blockedEvent string) error {
	status, err := e.HitRateLimit(ctx, scope, identifier)
	if err != nil {
		return err
	}
	if !status.Blocked {
		return nil
	}

	e.emitEvent(ctx, AuditEvent{
		EventType: blockedEvent,
		Email:     identifier,
		Success:   false,
		Error:     "rate limit exceeded",
	})

	return &RateLimitError{Scope: scope, Status: *status}
}
