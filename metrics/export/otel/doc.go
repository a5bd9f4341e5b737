// Package otel bridges authcore counters into OpenTelemetry instruments.
//
// [NewExporter] registers one Int64ObservableCounter per engine counter
// on the caller's meter; values are pulled from the engine snapshot on
// every collection cycle, so the bridge adds no cost to the hot path.
//
// # What this package must NOT do
//
//   - Own a MeterProvider — callers pass the meter and control export.
//   - Mutate engine state.
package otel
