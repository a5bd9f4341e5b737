package authcore

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/swiftdrop/authcore/internal/audit"
	"github.com/swiftdrop/authcore/internal/metrics"
	"github.com/swiftdrop/authcore/internal/rate"
	"github.com/swiftdrop/authcore/internal/stores"
	"github.com/swiftdrop/authcore/jwt"
	"github.com/swiftdrop/authcore/password"
)

// Engine is the credential lifecycle service. Construct it once through
// [Builder.Build]; all methods are safe for concurrent use.
type Engine struct {
	config       Config
	redis        redis.UniversalClient
	jwtManager   *jwt.Manager
	passwordHash *password.Hasher
	userProvider UserProvider
	emailSender  EmailSender

	refreshStore *stores.RefreshStore
	blacklist    *stores.Blacklist
	otpStore     *stores.OTPStore
	rateLimiter  *rate.Limiter

	audit   *audit.Dispatcher
	metrics *metrics.Metrics

	closed atomic.Bool
}

var errEngineClosed = errors.New("engine closed")

// Close flushes the audit pipeline. The Redis client is the caller's and
// stays open. Close is idempotent.
func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	e.audit.Close()
	return nil
}

func (e *Engine) checkOpen() error {
	if e.closed.Load() {
		return errEngineClosed
	}
	return nil
}

// opCtx bounds a store round-trip. The caller's deadline wins when it is
// earlier than the configured cap.
func (e *Engine) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, e.config.Store.OpTimeout)
}

// Config returns a copy of the effective configuration with the JWT
// secret blanked.
func (e *Engine) Config() Config {
	cfg := cloneConfig(e.config)
	cfg.JWT.Secret = nil
	return cfg
}

// MetricsSnapshot copies the in-process counters. All zeros when metrics
// are disabled.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	return e.metrics.Snapshot()
}

// AuditDropped reports audit events shed under backpressure.
func (e *Engine) AuditDropped() uint64 {
	return e.audit.Dropped()
}

// Security event types, recorded verbatim in the audit trail and as
// Redis counter key suffixes.
const (
	EventRegistration        = "registration"
	EventLoginSuccess        = "login_success"
	EventLoginFailure        = "login_failure"
	EventLoginRateLimited    = "login_rate_limited"
	EventAccountLockout      = "account_lockout"
	EventTokenIssued         = "token_issued"
	EventTokenRefreshed      = "token_refreshed"
	EventTokenRevoked        = "token_revoked"
	EventRefreshReuse        = "refresh_reuse_detected"
	EventOTPSent             = "otp_sent"
	EventOTPRateLimited      = "otp_rate_limited"
	EventOTPVerified         = "otp_verified"
	EventOTPFailed           = "otp_failed"
	EventPasswordChanged     = "password_changed"
)

var eventMetric = map[string]metrics.MetricID{
	EventRegistration:     metrics.MetricRegistration,
	EventLoginSuccess:     metrics.MetricLoginSuccess,
	EventLoginFailure:     metrics.MetricLoginFailure,
	EventLoginRateLimited: metrics.MetricLoginRateLimited,
	EventAccountLockout:   metrics.MetricAccountLockout,
	EventTokenIssued:      metrics.MetricTokenIssued,
	EventTokenRefreshed:   metrics.MetricTokenRefreshed,
	EventTokenRevoked:     metrics.MetricTokenRevoked,
	EventRefreshReuse:     metrics.MetricRefreshReuseDetected,
	EventOTPSent:          metrics.MetricOTPSent,
	EventOTPRateLimited:   metrics.MetricOTPRateLimited,
	EventOTPVerified:      metrics.MetricOTPVerified,
	EventOTPFailed:        metrics.MetricOTPFailed,
	EventPasswordChanged:  metrics.MetricPasswordChanged,
}

// emitEvent records a security event on every configured channel: the
// audit sink, the in-process counter, and the rolling Redis counter.
// None of them can fail the operation being recorded.
func (e *Engine) emitEvent(ctx context.Context, event AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	e.audit.Emit(ctx, event)

	if id, ok := eventMetric[event.EventType]; ok {
		e.metrics.Inc(id)
	}

	if e.config.Audit.EventCounters {
		go e.bumpEventCounter(event.EventType)
	}
}

// bumpEventCounter maintains security_events:<type> with a rolling TTL.
// Runs detached with its own deadline; failures are dropped.
func (e *Engine) bumpEventCounter(eventType string) {
	ctx, cancel := context.WithTimeout(context.Background(), e.config.Audit.EventCounterTimeout)
	defer cancel()

	key := "security_events:" + eventType
	count, err := e.redis.Incr(ctx, key).Result()
	if err != nil {
		return
	}
	if count == 1 {
		e.redis.Expire(ctx, key, e.config.Audit.EventCounterTTL)
	}
}

// EventCounter reads the rolling Redis counter for one event type.
// Returns zero for unknown or expired counters.
func (e *Engine) EventCounter(ctx context.Context, eventType string) (int64, error) {
	if err := e.checkOpen(); err != nil {
		return 0, err
	}
	ctx, cancel := e.opCtx(ctx)
	defer cancel()

	val, err := e.redis.Get(ctx, "security_events:"+eventType).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, storeErr(err)
	}
	return val, nil
}
