// Package prometheus renders phoneAuth engine metrics in the Prometheus text
// exposition format.
//
// [NewPrometheusExporter] accepts a [phoneAuth.Engine] and exposes an
// [http.Handler]. Counter names are prefixed phoneauth_ and end in _total;
// the single histogram is phoneauth_validate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry; callers mount the Handler.
//   - Mutate engine state.
package prometheus
