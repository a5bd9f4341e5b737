// Package jwt issues and verifies the signed bearer tokens used by the
// authcore engine: short-lived access tokens and longer-lived refresh
// tokens, both HS256-signed with embedded type, issuer, audience, and
// expiry claims. Refresh tokens additionally carry a random token ID
// (jti) that the engine uses for store lookups and blacklist keys.
//
// # Architecture boundaries
//
// This package owns claim layout, signing, and structural validation.
// Revocation (blacklist membership) and refresh rotation policy are the
// engine's responsibility; verification here is pure and has no side
// effects.
//
// # What this package must NOT do
//
//   - Access Redis or any I/O.
//   - Import the authcore root package.
//   - Decide whether a syntactically valid token is still acceptable.
package jwt
