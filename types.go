package authcore

import (
	"context"
	"io"
	"time"

	"github.com/swiftdrop/authcore/internal/audit"
	"github.com/swiftdrop/authcore/internal/rate"
	"github.com/swiftdrop/authcore/internal/stores"
	"github.com/swiftdrop/authcore/jwt"
)

// Aliases re-export internal value types so callers never import
// internal packages directly.
type (
	// Claims is the verified content of an access or refresh token.
	Claims = jwt.Claims
	// TokenPair is a freshly issued access plus refresh token.
	TokenPair = jwt.Pair
	// DeviceMetadata describes the client a refresh token was issued to.
	DeviceMetadata = stores.DeviceMetadata
	// RateWindow is a fixed-window budget: Max attempts per Period.
	RateWindow = rate.Window
	// RateLimitStatus is the observable state of one window.
	RateLimitStatus = rate.Status
	// AuditEvent is one entry of the security event log.
	AuditEvent = audit.Event
	// AuditSink receives audit events from the dispatcher goroutine.
	AuditSink = audit.Sink
)

// Re-exported sinks for common audit wiring.
type (
	NoOpAuditSink       = audit.NoOpSink
	ChannelAuditSink    = audit.ChannelSink
	JSONWriterAuditSink = audit.JSONWriterSink
)

// NewChannelSink builds a sink that forwards events into a buffered
// channel, handy for tests and external log pipelines.
func NewChannelSink(buffer int) *ChannelAuditSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink builds a sink that writes one JSON object per line.
func NewJSONWriterSink(w io.Writer) *JSONWriterAuditSink {
	return audit.NewJSONWriterSink(w)
}

// AccountStatus is the lifecycle state of a user account.
type AccountStatus string

const (
	StatusActive   AccountStatus = "active"
	StatusDisabled AccountStatus = "disabled"
	StatusDeleted  AccountStatus = "deleted"
)

// UserRecord is the engine's read/write view of an account. The hosting
// application owns the full user aggregate; the engine only touches the
// fields listed here.
type UserRecord struct {
	ID           string
	Email        string
	PasswordHash string
	Role         string
	Status       AccountStatus

	// Login guard state, owned by the engine through
	// UserProvider.UpdateLoginGuard.
	FailedLoginAttempts int
	BlockedUntil        time.Time
}

// UserProvider adapts the application's user storage to the engine.
// Lookups return ErrUserNotFound for unknown users; CreateUser returns
// ErrAccountExists for a duplicate email.
type UserProvider interface {
	GetUserByEmail(ctx context.Context, email string) (*UserRecord, error)
	GetUserByID(ctx context.Context, id string) (*UserRecord, error)
	CreateUser(ctx context.Context, user *UserRecord) error
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error
	// UpdateLoginGuard persists the lockout counters. blockedUntil is the
	// zero time when the account is not blocked.
	UpdateLoginGuard(ctx context.Context, userID string, failedAttempts int, blockedUntil time.Time) error
}

// EmailSender delivers one-time passcodes. Implementations return a
// provider message id for the audit trail, or "" if none exists.
type EmailSender interface {
	SendOTP(ctx context.Context, recipient, code, purpose string) (messageID string, err error)
}

// OTPReceipt reports a successfully issued passcode. The code itself is
// never returned to the caller.
type OTPReceipt struct {
	Email            string
	Purpose          string
	ExpiresAt        time.Time
	ExpiresInSeconds int
	// MessageID is the delivery provider's identifier, if any.
	MessageID string
}

// LoginResult is the outcome of a successful credential check.
type LoginResult struct {
	User   *UserRecord
	Tokens *TokenPair
}
