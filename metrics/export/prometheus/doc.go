// Package prometheus renders authcore counters in Prometheus text
// exposition format.
//
// [NewExporter] accepts an [authcore.Engine] and exposes an
// [http.Handler] suitable for mounting at /metrics. Counter names are
// prefixed authcore_*_total.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount
//     the Handler.
//   - Mutate engine state.
package prometheus
