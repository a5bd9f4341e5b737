// Package middleware exposes HTTP middleware adapters for bearer-token
// enforcement built on top of authcore.Engine verification.
//
// # Guards
//
//   - [RequireAccess] — stateless access token verification.
//   - [RequireRefresh] — refresh token verification including the
//     revocation blacklist check.
//
// Each guard reads the Authorization header, calls the engine, and
// injects verified claims into the request context.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access Redis (Engine handles I/O).
//   - Make authorization decisions beyond pass/reject from the Engine.
package middleware
