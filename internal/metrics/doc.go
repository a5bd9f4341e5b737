// Package metrics implements lock-free in-process counters for the
// engine's security events. Counters are advisory monitoring data, kept
// separate from the durable audit trail, and cost one atomic add when
// enabled and one branch when disabled.
package metrics
