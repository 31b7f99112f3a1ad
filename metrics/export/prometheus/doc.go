// Package prometheus exposes engine metrics as a client_golang
// [prometheus.Collector].
//
// The collector reads [deskauth.Engine.MetricsSnapshot] on every scrape and
// emits constant metrics, so register it with whatever registry the
// service already serves. [Handler] wraps a private registry for callers
// that have none.
//
// # What this package must NOT do
//
//   - Register into prometheus.DefaultRegisterer on its own.
//   - Mutate engine state.
package prometheus
