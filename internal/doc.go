// Package internal holds shared helpers for the authcore engine that must
// not become public API: random code generation and token hashing.
package internal
