// Package prometheus renders tokenguard metrics in Prometheus text format.
//
// [NewPrometheusExporter] wraps an [tokenguard.Engine] and exposes an
// [http.Handler] for the /metrics route. Counter names are prefixed
// tokenguard_*_total; latency histograms end in _seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry. Callers mount the Handler.
//   - Mutate engine state.
package prometheus
