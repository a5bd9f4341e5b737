package authcore

import (
	"errors"
	"fmt"
	"time"

	"github.com/swiftdrop/authcore/internal/audit"
	"github.com/swiftdrop/authcore/internal/metrics"
	"github.com/swiftdrop/authcore/jwt"
	"github.com/swiftdrop/authcore/password"
)

// Rate limiter scopes known out of the box. Additional scopes may be
// registered through Config.RateLimit.Scopes.
const (
	ScopeLogin   = "login"
	ScopeOTPSend = "otp_send"
)

// OTPConfig bounds one-time passcode issuance and verification.
type OTPConfig struct {
	// Digits is the passcode length, 6 through 10.
	Digits int
	// TTL is how long an issued code stays verifiable.
	TTL time.Duration
	// MaxAttempts is the verification budget per issued code.
	MaxAttempts int
}

// RateLimitConfig maps scope names to fixed windows.
type RateLimitConfig struct {
	Scopes map[string]RateWindow
}

// LockoutConfig controls the consecutive-failure login guard.
type LockoutConfig struct {
	// Threshold is the number of consecutive failed logins that trips the
	// lockout. Zero disables the guard.
	Threshold int
	Duration  time.Duration
}

// AuditConfig controls the security event pipeline.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull sheds events under backpressure instead of blocking the
	// credential operation that produced them.
	DropIfFull bool
	// EventCounters maintains per-type rolling counters in Redis
	// (security_events:<type>), useful for cheap anomaly alerting.
	EventCounters       bool
	EventCounterTTL     time.Duration
	EventCounterTimeout time.Duration
}

// MetricsConfig toggles in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// SecurityConfig holds posture knobs.
type SecurityConfig struct {
	// FailOpenRevocationCheck accepts access tokens when the blacklist
	// lookup itself fails. The default is fail closed: an unreachable
	// store rejects the token with ErrStoreUnavailable.
	FailOpenRevocationCheck bool
}

// StoreConfig bounds Redis round-trips.
type StoreConfig struct {
	// OpTimeout caps each store operation when the caller's context has no
	// earlier deadline.
	OpTimeout time.Duration
}

// Config is the full engine configuration. Zero-value fields are filled
// with defaults by Builder.Build; JWT.Secret is the only field with no
// usable default.
type Config struct {
	JWT       jwt.Config
	Password  password.Config
	OTP       OTPConfig
	RateLimit RateLimitConfig
	Lockout   LockoutConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
	Security  SecurityConfig
	Store     StoreConfig
}

func defaultConfig() Config {
	return Config{
		JWT: jwt.Config{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			Issuer:     "authcore",
		},
		Password: password.Config{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		OTP: OTPConfig{
			Digits:      6,
			TTL:         5 * time.Minute,
			MaxAttempts: 3,
		},
		RateLimit: RateLimitConfig{
			Scopes: map[string]RateWindow{
				ScopeLogin:   {Max: 5, Period: 15 * time.Minute},
				ScopeOTPSend: {Max: 5, Period: time.Hour},
			},
		},
		Lockout: LockoutConfig{
			Threshold: 5,
			Duration:  15 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:             true,
			BufferSize:          256,
			DropIfFull:          true,
			EventCounters:       true,
			EventCounterTTL:     time.Hour,
			EventCounterTimeout: 2 * time.Second,
		},
		Metrics: MetricsConfig{Enabled: true},
		Store:   StoreConfig{OpTimeout: 3 * time.Second},
	}
}

// mergeDefaults fills zero-value fields in cfg from def. Boolean knobs
// whose default is true are handled by the Builder's option setters, not
// here, because a bool cannot distinguish "unset" from "false".
func mergeDefaults(cfg, def Config) Config {
	if cfg.JWT.AccessTTL == 0 {
		cfg.JWT.AccessTTL = def.JWT.AccessTTL
	}
	if cfg.JWT.RefreshTTL == 0 {
		cfg.JWT.RefreshTTL = def.JWT.RefreshTTL
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = def.JWT.Issuer
	}
	if cfg.Password.Memory == 0 {
		cfg.Password = def.Password
	}
	if cfg.OTP.Digits == 0 {
		cfg.OTP.Digits = def.OTP.Digits
	}
	if cfg.OTP.TTL == 0 {
		cfg.OTP.TTL = def.OTP.TTL
	}
	if cfg.OTP.MaxAttempts == 0 {
		cfg.OTP.MaxAttempts = def.OTP.MaxAttempts
	}
	if cfg.RateLimit.Scopes == nil {
		cfg.RateLimit.Scopes = def.RateLimit.Scopes
	} else {
		for scope, window := range def.RateLimit.Scopes {
			if _, ok := cfg.RateLimit.Scopes[scope]; !ok {
				cfg.RateLimit.Scopes[scope] = window
			}
		}
	}
	if cfg.Lockout.Threshold == 0 {
		cfg.Lockout.Threshold = def.Lockout.Threshold
	}
	if cfg.Lockout.Duration == 0 {
		cfg.Lockout.Duration = def.Lockout.Duration
	}
	if cfg.Audit.BufferSize == 0 {
		cfg.Audit.BufferSize = def.Audit.BufferSize
	}
	if cfg.Audit.EventCounterTTL == 0 {
		cfg.Audit.EventCounterTTL = def.Audit.EventCounterTTL
	}
	if cfg.Audit.EventCounterTimeout == 0 {
		cfg.Audit.EventCounterTimeout = def.Audit.EventCounterTimeout
	}
	if cfg.Store.OpTimeout == 0 {
		cfg.Store.OpTimeout = def.Store.OpTimeout
	}
	return cfg
}

func validateConfig(cfg Config) error {
	var errs []error

	if len(cfg.JWT.Secret) == 0 {
		errs = append(errs, errors.New("jwt secret is required"))
	}
	if cfg.OTP.Digits < 6 || cfg.OTP.Digits > 10 {
		errs = append(errs, fmt.Errorf("otp digits must be 6..10, got %d", cfg.OTP.Digits))
	}
	if cfg.OTP.TTL <= 0 {
		errs = append(errs, errors.New("otp ttl must be positive"))
	}
	if cfg.OTP.MaxAttempts <= 0 {
		errs = append(errs, errors.New("otp max attempts must be positive"))
	}
	for scope, window := range cfg.RateLimit.Scopes {
		if window.Max <= 0 || window.Period <= 0 {
			errs = append(errs, fmt.Errorf("rate limit scope %q needs positive max and period", scope))
		}
	}
	if cfg.Lockout.Threshold < 0 {
		errs = append(errs, errors.New("lockout threshold cannot be negative"))
	}
	if cfg.Lockout.Threshold > 0 && cfg.Lockout.Duration <= 0 {
		errs = append(errs, errors.New("lockout duration must be positive when threshold is set"))
	}
	if cfg.Store.OpTimeout <= 0 {
		errs = append(errs, errors.New("store op timeout must be positive"))
	}

	return errors.Join(errs...)
}

// cloneConfig deep-copies the mutable parts so the engine's view cannot
// change under it after Build.
func cloneConfig(cfg Config) Config {
	scopes := make(map[string]RateWindow, len(cfg.RateLimit.Scopes))
	for scope, window := range cfg.RateLimit.Scopes {
		scopes[scope] = window
	}
	cfg.RateLimit.Scopes = scopes

	secret := make([]byte, len(cfg.JWT.Secret))
	copy(secret, cfg.JWT.Secret)
	cfg.JWT.Secret = secret

	return cfg
}

func (c AuditConfig) dispatcherConfig() audit.Config {
	return audit.Config{
		Enabled:    c.Enabled,
		BufferSize: c.BufferSize,
		DropIfFull: c.DropIfFull,
	}
}

func (c MetricsConfig) metricsConfig() metrics.Config {
	return metrics.Config{Enabled: c.Enabled}
}
