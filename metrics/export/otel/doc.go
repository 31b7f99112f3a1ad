// Package otel publishes engine metrics through an OpenTelemetry
// [metric.Meter].
//
// Every counter becomes an Int64ObservableCounter. The latency histogram
// becomes one Int64ObservableGauge per cumulative bucket plus a count
// gauge. One callback reads [deskauth.Engine.MetricsSnapshot] per
// collection.
//
// # What this package must NOT do
//
//   - Own the MeterProvider; callers supply the Meter.
//   - Mutate engine state.
package otel
