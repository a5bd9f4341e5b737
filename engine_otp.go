package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/swiftdrop/authcore/internal"
	"github.com/swiftdrop/authcore/internal/stores"
)

// SendOTP issues a one-time passcode to an email address. The per-email
// send window is consumed first; on pass, a fresh code supersedes any
// previously active one for that address and is handed to the configured
// EmailSender. Resend is the same operation, with no rate-limit bypass.
func (e *Engine) SendOTP(ctx context.Context, email, purpose string) (*OTPReceipt, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if e.emailSender == nil {
		return nil, errors.New("no email sender configured")
	}

	email = normalizeEmail(email)
	if email == "" {
		return nil, errors.New("email is required")
	}

	if err := e.hitLimiter(ctx, ScopeOTPSend, email, EventOTPRateLimited); err != nil {
		return nil, err
	}

	code, err := internal.NewOTP(e.config.OTP.Digits)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	record := &stores.OTPRecord{
		Code:      code,
		Purpose:   purpose,
		CreatedAt: now,
		ExpiresAt: now.Add(e.config.OTP.TTL),
	}

	putCtx, cancel := e.opCtx(ctx)
	err = e.otpStore.Put(putCtx, email, record)
	cancel()
	if err != nil {
		return nil, storeErr(err)
	}

	messageID, err := e.emailSender.SendOTP(ctx, email, code, purpose)
	if err != nil {
		e.emitEvent(ctx, AuditEvent{
			EventType: EventOTPFailed,
			Email:     email,
			Success:   false,
			Error:     "delivery failed",
		})
		return nil, err
	}

	e.emitEvent(ctx, AuditEvent{
		EventType: EventOTPSent,
		Email:     email,
		Success:   true,
	})

	return &OTPReceipt{
		Email:            email,
		Purpose:          purpose,
		ExpiresAt:        record.ExpiresAt,
		ExpiresInSeconds: int(e.config.OTP.TTL / time.Second),
		MessageID:        messageID,
	}, nil
}

// VerifyOTP checks a submitted passcode. Malformed input is rejected
// before any store access; otherwise the attempt is counted even when
// the code is wrong, so retries cannot probe for free. A correct code
// presented after the attempt budget is spent still fails.
func (e *Engine) VerifyOTP(ctx context.Context, email, code string) error {
	if err := e.checkOpen(); err != nil {
		return err
	}

	email = normalizeEmail(email)
	if !internal.IsDigits(code, e.config.OTP.Digits) {
		return ErrOTPInvalidFormat
	}

	consumeCtx, cancel := e.opCtx(ctx)
	remaining, err := e.otpStore.Consume(consumeCtx, email, code, e.config.OTP.MaxAttempts)
	cancel()

	switch {
	case err == nil:
		e.emitEvent(ctx, AuditEvent{
			EventType: EventOTPVerified,
			Email:     email,
			Success:   true,
		})
		return nil

	case errors.Is(err, stores.ErrOTPNotFound):
		e.emitOTPFailure(ctx, email, "expired or missing")
		return ErrOTPExpired

	case errors.Is(err, stores.ErrOTPAttemptsExhausted):
		e.emitOTPFailure(ctx, email, "attempts exceeded")
		return ErrOTPAttemptsExceeded

	case errors.Is(err, stores.ErrOTPCodeMismatch):
		// A mismatch on the final attempt is still reported as a mismatch,
		// with zero attempts remaining; the next call sees exhaustion.
		e.emitOTPFailure(ctx, email, "code mismatch")
		return &OTPMismatchError{AttemptsRemaining: remaining}

	default:
		return storeErr(err)
	}
}

func (e *Engine) emitOTPFailure(ctx context.Context, email, reason string) {
	e.emitEvent(ctx, AuditEvent{
		EventType: EventOTPFailed,
		Email:     email,
		Success:   false,
		Error:     reason,
	})
}
