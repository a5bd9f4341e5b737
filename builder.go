package authcore

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/swiftdrop/authcore/internal/audit"
	"github.com/swiftdrop/authcore/internal/metrics"
	"github.com/swiftdrop/authcore/internal/rate"
	"github.com/swiftdrop/authcore/internal/stores"
	"github.com/swiftdrop/authcore/jwt"
	"github.com/swiftdrop/authcore/password"
)

// Builder assembles an Engine. Required inputs are the Redis client, a
// JWT secret, and a UserProvider; everything else has defaults. Setters
// return the builder for chaining and Build reports all configuration
// errors at once.
type Builder struct {
	cfg          Config
	redis        redis.UniversalClient
	userProvider UserProvider
	emailSender  EmailSender
	auditSink    AuditSink
	errs         []error
}

// NewBuilder starts a builder with default configuration.
func NewBuilder() *Builder {
	return &Builder{cfg: defaultConfig()}
}

// WithRedis sets the backing store client. The engine does not own the
// client; Close does not close it.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	if client == nil {
		b.errs = append(b.errs, errors.New("redis client is nil"))
		return b
	}
	b.redis = client
	return b
}

// WithUserProvider sets the application's account storage adapter.
func (b *Builder) WithUserProvider(p UserProvider) *Builder {
	if p == nil {
		b.errs = append(b.errs, errors.New("user provider is nil"))
		return b
	}
	b.userProvider = p
	return b
}

// WithEmailSender enables OTP delivery. Without it, SendOTP fails.
func (b *Builder) WithEmailSender(s EmailSender) *Builder {
	b.emailSender = s
	return b
}

// WithJWTSecret sets the HMAC signing key. Minimum 32 bytes.
func (b *Builder) WithJWTSecret(secret []byte) *Builder {
	b.cfg.JWT.Secret = secret
	return b
}

// WithJWTConfig replaces the token configuration wholesale. Zero fields
// fall back to defaults at Build.
func (b *Builder) WithJWTConfig(cfg jwt.Config) *Builder {
	b.cfg.JWT = cfg
	return b
}

// WithPasswordConfig tunes the argon2id hasher.
func (b *Builder) WithPasswordConfig(cfg password.Config) *Builder {
	b.cfg.Password = cfg
	return b
}

// WithOTP tunes passcode length, lifetime, and the attempt budget.
func (b *Builder) WithOTP(cfg OTPConfig) *Builder {
	b.cfg.OTP = cfg
	return b
}

// WithRateLimitScope adds or overrides one named window.
func (b *Builder) WithRateLimitScope(scope string, w RateWindow) *Builder {
	if b.cfg.RateLimit.Scopes == nil {
		b.cfg.RateLimit.Scopes = map[string]RateWindow{}
	}
	b.cfg.RateLimit.Scopes[scope] = w
	return b
}

// WithLockout tunes the consecutive-failure login guard. A zero
// threshold disables it.
func (b *Builder) WithLockout(threshold int, duration time.Duration) *Builder {
	b.cfg.Lockout = LockoutConfig{Threshold: threshold, Duration: duration}
	return b
}

// WithAudit replaces the audit pipeline configuration.
func (b *Builder) WithAudit(cfg AuditConfig) *Builder {
	b.cfg.Audit = cfg
	return b
}

// WithAuditSink sets where accepted events are delivered. Defaults to a
// no-op sink when audit is enabled without one.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithoutAudit disables the event pipeline entirely.
func (b *Builder) WithoutAudit() *Builder {
	b.cfg.Audit.Enabled = false
	return b
}

// WithoutMetrics disables in-process counters.
func (b *Builder) WithoutMetrics() *Builder {
	b.cfg.Metrics.Enabled = false
	return b
}

// WithFailOpenRevocationCheck accepts access tokens when the blacklist
// lookup fails, trading strictness for availability.
func (b *Builder) WithFailOpenRevocationCheck() *Builder {
	b.cfg.Security.FailOpenRevocationCheck = true
	return b
}

// WithStoreTimeout caps each Redis operation issued by the engine.
func (b *Builder) WithStoreTimeout(d time.Duration) *Builder {
	b.cfg.Store.OpTimeout = d
	return b
}

// Build validates the accumulated configuration and constructs the
// Engine. The returned Engine is ready for concurrent use.
func (b *Builder) Build() (*Engine, error) {
	errs := b.errs
	if b.redis == nil {
		errs = append(errs, errors.New("redis client is required"))
	}
	if b.userProvider == nil {
		errs = append(errs, errors.New("user provider is required"))
	}

	cfg := mergeDefaults(b.cfg, defaultConfig())
	if err := validateConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	cfg = cloneConfig(cfg)

	jwtManager, err := jwt.NewManager(cfg.JWT)
	if err != nil {
		return nil, err
	}
	hasher, err := password.NewHasher(cfg.Password)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		config:       cfg,
		redis:        b.redis,
		jwtManager:   jwtManager,
		passwordHash: hasher,
		userProvider: b.userProvider,
		emailSender:  b.emailSender,
		refreshStore: stores.NewRefreshStore(b.redis),
		blacklist:    stores.NewBlacklist(b.redis),
		otpStore:     stores.NewOTPStore(b.redis),
		rateLimiter:  rate.New(b.redis),
		metrics:      metrics.New(cfg.Metrics.metricsConfig()),
		audit:        audit.NewDispatcher(cfg.Audit.dispatcherConfig(), b.auditSink),
	}

	return e, nil
}
