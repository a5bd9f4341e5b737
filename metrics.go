package authcore

import "github.com/swiftdrop/authcore/internal/metrics"

// MetricsSnapshot is a point-in-time copy of the engine's counters,
// indexed by the Metric* constants below.
type MetricsSnapshot = metrics.Snapshot

// MetricID indexes one counter inside a MetricsSnapshot.
type MetricID = metrics.MetricID

const (
	MetricRegistration         = metrics.MetricRegistration
	MetricLoginSuccess         = metrics.MetricLoginSuccess
	MetricLoginFailure         = metrics.MetricLoginFailure
	MetricLoginRateLimited     = metrics.MetricLoginRateLimited
	MetricAccountLockout       = metrics.MetricAccountLockout
	MetricTokenIssued          = metrics.MetricTokenIssued
	MetricTokenRefreshed       = metrics.MetricTokenRefreshed
	MetricTokenRevoked         = metrics.MetricTokenRevoked
	MetricRefreshReuseDetected = metrics.MetricRefreshReuseDetected
	MetricOTPSent              = metrics.MetricOTPSent
	MetricOTPRateLimited       = metrics.MetricOTPRateLimited
	MetricOTPVerified          = metrics.MetricOTPVerified
	MetricOTPFailed            = metrics.MetricOTPFailed
	MetricPasswordChanged      = metrics.MetricPasswordChanged
	MetricCount                = metrics.MetricIDCount
)
