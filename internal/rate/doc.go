// Package rate implements a generic fixed-window rate limiter on Redis
// counters. A counter key is created on the first increment of a window
// and expires exactly one window length later; increments are atomic at
// the store level so concurrent requests cannot slip past the budget.
//
// # What this package must NOT do
//
//   - Decide which scopes exist or what their budgets are; callers pass a
//     Window per call.
//   - Read-then-write counters. All mutation goes through INCR.
package rate
