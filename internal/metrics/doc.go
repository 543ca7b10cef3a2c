// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Gateway session state, command results and reconnects
//   - Record rates, decode failures and consumer queue drops
//   - Router dispatch counts per stream
//   - Writer batch sizes, inserts and flush latencies
//   - Quote cache writes
//
// Each struct is built against a prometheus.Registerer. A nil registerer
// yields working but unregistered collectors.
package metrics
