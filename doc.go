// Package authcore implements the credential and verification lifecycle
// of the SwiftDrop delivery backend: issuance, verification, rotation,
// and revocation of JWT bearer-token pairs, one-time email passcodes
// under attempt and rate budgets, account lockout, and an append-only
// security event log, all backed by Redis with per-key expiry.
//
// The package is designed for concurrent server workloads: Engine
// methods are safe to call from multiple goroutines after initialization
// through [Builder.Build]. There are no package-level singletons; the
// Engine is an explicit handle constructed once at process startup and
// passed to whatever needs it.
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder],
// [Config], and value types (TokenPair, OTPReceipt, RateLimitStatus,
// AuditEvent, etc.). Store encodings, Lua scripts, limiter mechanics,
// and audit dispatch live under internal/ and are never exported.
//
// User accounts and outbound email are collaborators, reached through
// the [UserProvider] and [EmailSender] interfaces; authcore never owns
// their storage or delivery.
//
// # What this package must NOT do
//
//   - Define HTTP routes or parse requests (see middleware/ for the one
//     integration point).
//   - Expose Redis clients or record encodings in its public API.
//   - Let audit logging failures abort the credential operation they
//     describe.
package authcore
