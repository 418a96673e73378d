// Package metrics collects request statistics for the server and exposes
// them, together with worker pool statistics, as Prometheus metrics.
//
// # Basic Usage
//
//	m := metrics.New()
//
//	start := time.Now()
//	// ... handle a request ...
//	m.RecordSuccess(time.Since(start))
//
//	snap := m.Snapshot()
//	fmt.Printf("total: %d, p99: %v\n", snap.TotalRequests, snap.P99Latency)
//
// # Prometheus
//
// NewCollector wraps a *Metrics and anything with a Stats() worker.Stats
// method (normally *worker.Pool). Register it with a prometheus.Registerer:
//
//	reg := prometheus.NewRegistry()
//	reg.MustRegister(metrics.NewCollector(pool, m))
//
// # Thread Safety
//
// Counters are atomic; the latency sample window is guarded by a mutex.
package metrics
