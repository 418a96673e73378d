package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"hello-server/internal/worker"
)

const namespace = "hello"

// StatsSource はプール統計の取得元（通常は *worker.Pool）
type StatsSource interface {
	Stats() worker.Stats
}

// Collector はプール統計とリクエストメトリクスを Prometheus に公開する
type Collector struct {
	pool    StatsSource
	metrics *Metrics

	workers       *prometheus.Desc
	joined        *prometheus.Desc
	queueLength   *prometheus.Desc
	queueCapacity *prometheus.Desc
	executed      *prometheus.Desc
	failed        *prometheus.Desc
	discarded     *prometheus.Desc
	requests      *prometheus.Desc
	rejected      *prometheus.Desc
	avgLatency    *prometheus.Desc
	p99Latency    *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector は Collector を作成する。pool と m はどちらも nil を許す
func NewCollector(pool StatsSource, m *Metrics) *Collector {
	workerLabel := []string{"worker"}
	return &Collector{
		pool:    pool,
		metrics: m,

		workers: prometheus.NewDesc(prometheus.BuildFQName(namespace, "pool", "workers"),
			"Number of workers in the pool.", nil, nil),
		joined: prometheus.NewDesc(prometheus.BuildFQName(namespace, "pool", "joined_workers"),
			"Number of workers joined during shutdown.", nil, nil),
		queueLength: prometheus.NewDesc(prometheus.BuildFQName(namespace, "pool", "queue_length"),
			"Jobs waiting in the queue.", nil, nil),
		queueCapacity: prometheus.NewDesc(prometheus.BuildFQName(namespace, "pool", "queue_capacity"),
			"Capacity of the job queue.", nil, nil),
		executed: prometheus.NewDesc(prometheus.BuildFQName(namespace, "pool", "jobs_executed_total"),
			"Jobs executed per worker, including failed ones.", workerLabel, nil),
		failed: prometheus.NewDesc(prometheus.BuildFQName(namespace, "pool", "jobs_failed_total"),
			"Jobs that returned an error or panicked, per worker.", workerLabel, nil),
		discarded: prometheus.NewDesc(prometheus.BuildFQName(namespace, "pool", "jobs_discarded_total"),
			"Queued jobs dropped during a discarding shutdown, per worker.", workerLabel, nil),
		requests: prometheus.NewDesc(prometheus.BuildFQName(namespace, "server", "requests_total"),
			"Handled requests by result.", []string{"result"}, nil),
		rejected: prometheus.NewDesc(prometheus.BuildFQName(namespace, "server", "rejected_connections_total"),
			"Connections the pool did not accept.", nil, nil),
		avgLatency: prometheus.NewDesc(prometheus.BuildFQName(namespace, "server", "request_latency_average_seconds"),
			"Average request latency.", nil, nil),
		p99Latency: prometheus.NewDesc(prometheus.BuildFQName(namespace, "server", "request_latency_p99_seconds"),
			"99th percentile request latency over the sample window.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.workers, c.joined, c.queueLength, c.queueCapacity,
		c.executed, c.failed, c.discarded,
		c.requests, c.rejected, c.avgLatency, c.p99Latency,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.pool != nil {
		s := c.pool.Stats()
		ch <- prometheus.MustNewConstMetric(c.workers, prometheus.GaugeValue, float64(s.Workers))
		ch <- prometheus.MustNewConstMetric(c.joined, prometheus.GaugeValue, float64(s.Joined))
		ch <- prometheus.MustNewConstMetric(c.queueLength, prometheus.GaugeValue, float64(s.QueueLength))
		ch <- prometheus.MustNewConstMetric(c.queueCapacity, prometheus.GaugeValue, float64(s.QueueCapacity))
		for _, w := range s.PerWorker {
			id := strconv.Itoa(w.ID)
			ch <- prometheus.MustNewConstMetric(c.executed, prometheus.CounterValue, float64(w.Executed), id)
			ch <- prometheus.MustNewConstMetric(c.failed, prometheus.CounterValue, float64(w.Failed), id)
			ch <- prometheus.MustNewConstMetric(c.discarded, prometheus.CounterValue, float64(w.Discarded), id)
		}
	}

	if c.metrics != nil {
		snap := c.metrics.Snapshot()
		ch <- prometheus.MustNewConstMetric(c.requests, prometheus.CounterValue, float64(snap.SuccessRequests), "success")
		ch <- prometheus.MustNewConstMetric(c.requests, prometheus.CounterValue, float64(snap.FailedRequests), "failure")
		ch <- prometheus.MustNewConstMetric(c.rejected, prometheus.CounterValue, float64(snap.RejectedConns))
		ch <- prometheus.MustNewConstMetric(c.avgLatency, prometheus.GaugeValue, snap.AverageLatency.Seconds())
		ch <- prometheus.MustNewConstMetric(c.p99Latency, prometheus.GaugeValue, snap.P99Latency.Seconds())
	}
}
