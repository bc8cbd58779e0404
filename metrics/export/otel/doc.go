// Package otel binds phoneAuth engine metrics to OpenTelemetry instruments.
//
// [NewOTelExporter] registers an Int64ObservableCounter per engine counter and
// a bucket gauge per latency histogram, with the bucket bound in the "le"
// attribute. A single callback reads
// [phoneAuth.Engine.MetricsSnapshot] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider; callers supply the Meter.
//   - Mutate engine state.
package otel
