package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const defaultLatencySamples = 1000

// Metrics はリクエストのメトリクスを収集する
type Metrics struct {
	totalRequests   atomic.Uint64
	successRequests atomic.Uint64
	failedRequests  atomic.Uint64
	rejectedConns   atomic.Uint64
	totalLatencyNs  atomic.Uint64

	mu        sync.RWMutex
	startTime time.Time
	latencies []time.Duration // 直近 maxSamples 件のリングバッファ
	next      int
	maxSample int
}

// New は新しいメトリクスを作成する
func New() *Metrics {
	return NewWithSamples(defaultLatencySamples)
}

// NewWithSamples はレイテンシのサンプル数を指定してメトリクスを作成する
func NewWithSamples(samples int) *Metrics {
	if samples <= 0 {
		samples = defaultLatencySamples
	}
	return &Metrics{
		startTime: time.Now(),
		latencies: make([]time.Duration, 0, samples),
		maxSample: samples,
	}
}

// RecordSuccess は成功したリクエストを記録する
func (m *Metrics) RecordSuccess(latency time.Duration) {
	m.successRequests.Add(1)
	m.record(latency)
}

// RecordFailure は失敗したリクエストを記録する
func (m *Metrics) RecordFailure(latency time.Duration) {
	m.failedRequests.Add(1)
	m.record(latency)
}

// RecordRejected はプールに渡せなかった接続を記録する
func (m *Metrics) RecordRejected() {
	m.rejectedConns.Add(1)
}

func (m *Metrics) record(latency time.Duration) {
	m.totalRequests.Add(1)
	m.totalLatencyNs.Add(uint64(latency.Nanoseconds()))

	m.mu.Lock()
	if len(m.latencies) < m.maxSample {
		m.latencies = append(m.latencies, latency)
	} else {
		m.latencies[m.next] = latency
		m.next = (m.next + 1) % m.maxSample
	}
	m.mu.Unlock()
}

// TotalRequests は総リクエスト数を返す
func (m *Metrics) TotalRequests() uint64 {
	return m.totalRequests.Load()
}

// SuccessRequests は成功リクエスト数を返す
func (m *Metrics) SuccessRequests() uint64 {
	return m.successRequests.Load()
}

// FailedRequests は失敗リクエスト数を返す
func (m *Metrics) FailedRequests() uint64 {
	return m.failedRequests.Load()
}

// RejectedConnections は拒否した接続数を返す
func (m *Metrics) RejectedConnections() uint64 {
	return m.rejectedConns.Load()
}

// OverallRPS は開始からの平均RPSを返す
func (m *Metrics) OverallRPS() float64 {
	elapsed := time.Since(m.startTime).Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(m.totalRequests.Load()) / elapsed
}

// AverageLatency は平均レイテンシを返す
func (m *Metrics) AverageLatency() time.Duration {
	total := m.totalRequests.Load()
	if total == 0 {
		return 0
	}
	return time.Duration(m.totalLatencyNs.Load() / total)
}

// Percentile はサンプル中の q 分位（0.0〜1.0）のレイテンシを返す
func (m *Metrics) Percentile(q float64) time.Duration {
	m.mu.RLock()
	sorted := make([]time.Duration, len(m.latencies))
	copy(sorted, m.latencies)
	m.mu.RUnlock()

	if len(sorted) == 0 {
		return 0
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := int(float64(len(sorted)) * q)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}

// P99Latency はP99レイテンシを返す（サンプルベース）
func (m *Metrics) P99Latency() time.Duration {
	return m.Percentile(0.99)
}

// ErrorRate はエラー率を返す（0.0〜1.0）
func (m *Metrics) ErrorRate() float64 {
	total := m.totalRequests.Load()
	if total == 0 {
		return 0
	}
	return float64(m.failedRequests.Load()) / float64(total)
}

// Snapshot はメトリクスのスナップショット
type Snapshot struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	RejectedConns   uint64        `json:"rejected_connections"`
	OverallRPS      float64       `json:"rps"`
	AverageLatency  time.Duration `json:"avg_latency_ns"`
	P99Latency      time.Duration `json:"p99_latency_ns"`
	ErrorRate       float64       `json:"error_rate"`
	Elapsed         time.Duration `json:"elapsed_ns"`
}

// Snapshot は現在のメトリクスのスナップショットを返す
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		TotalRequests:   m.TotalRequests(),
		SuccessRequests: m.SuccessRequests(),
		FailedRequests:  m.FailedRequests(),
		RejectedConns:   m.RejectedConnections(),
		OverallRPS:      m.OverallRPS(),
		AverageLatency:  m.AverageLatency(),
		P99Latency:      m.P99Latency(),
		ErrorRate:       m.ErrorRate(),
		Elapsed:         time.Since(m.startTime),
	}
}
