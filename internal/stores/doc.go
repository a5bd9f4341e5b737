// Package stores implements the Redis-backed state of the credential
// lifecycle: refresh-token records with a per-subject index, the
// revocation blacklist, and one-time passcode records.
//
// Records are binary-encoded with a leading version byte and fixed-offset
// headers so the check-and-mutate Lua scripts can slice fields without a
// full decode. Every state transition that must be single-winner under
// concurrent requests (refresh consumption, OTP attempt counting) runs
// inside one script.
//
// # What this package must NOT do
//
//   - Interpret JWTs; it deals in token IDs and hashes only.
//   - Apply policy (attempt budgets and windows are passed in by the engine).
package stores
