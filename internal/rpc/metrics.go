package rpc

import (
	"math"
	"sort"
	"sync"
	"time"
)

// SlowRequestCallback is called outside the lock when a request exceeds the
// slow threshold.
type SlowRequestCallback func(operation string, latency time.Duration, at time.Time)

// SlowRequest captures one slow request.
type SlowRequest struct {
	Operation string    `json:"operation"`
	LatencyMS float64   `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}

// DefaultSlowThreshold is the default threshold for slow request detection.
const DefaultSlowThreshold = 250 * time.Millisecond

// Metrics holds in-process request statistics served at GET /metrics.
type Metrics struct {
	mu sync.RWMutex

	counts     map[string]int64            // operation -> requests
	failures   map[string]map[string]int64 // operation -> error code -> count
	latency    map[string][]time.Duration  // bounded samples per operation
	maxSamples int

	slowThreshold time.Duration
	slow          []SlowRequest
	maxSlow       int
	onSlow        SlowRequestCallback

	startTime time.Time
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		counts:        make(map[string]int64),
		failures:      make(map[string]map[string]int64),
		latency:       make(map[string][]time.Duration),
		maxSamples:    1000,
		maxSlow:       100,
		slowThreshold: DefaultSlowThreshold,
		startTime:     time.Now(),
	}
}

// SetSlowThreshold sets the slow request threshold. Zero disables detection.
func (m *Metrics) SetSlowThreshold(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slowThreshold = d
}

// OnSlowRequest registers the slow request callback.
func (m *Metrics) OnSlowRequest(cb SlowRequestCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSlow = cb
}

// Record records one request. code is empty for successful requests.
func (m *Metrics) Record(operation, code string, latency time.Duration) {
	now := time.Now()
	var cb SlowRequestCallback

	m.mu.Lock()
	m.counts[operation]++
	if code != "" {
		byCode := m.failures[operation]
		if byCode == nil {
			byCode = make(map[string]int64)
			m.failures[operation] = byCode
		}
		byCode[code]++
	}

	samples := m.latency[operation]
	if len(samples) >= m.maxSamples {
		samples = samples[1:]
	}
	m.latency[operation] = append(samples, latency)

	if m.slowThreshold > 0 && latency >= m.slowThreshold {
		if len(m.slow) >= m.maxSlow {
			m.slow = m.slow[1:]
		}
		m.slow = append(m.slow, SlowRequest{
			Operation: operation,
			LatencyMS: float64(latency) / float64(time.Millisecond),
			Timestamp: now,
		})
		cb = m.onSlow
	}
	m.mu.Unlock()

	if cb != nil {
		cb(operation, latency, now)
	}
}

// MetricsSnapshot is a point-in-time view of all metrics
type MetricsSnapshot struct {
	Timestamp       time.Time          `json:"timestamp"`
	UptimeSeconds   float64            `json:"uptime_seconds"`
	Operations      []OperationMetrics `json:"operations"`
	SlowThresholdMS float64            `json:"slow_threshold_ms"`
	RecentSlow      []SlowRequest      `json:"recent_slow,omitempty"`
}

// OperationMetrics holds metrics for a single operation
type OperationMetrics struct {
	Operation    string           `json:"operation"`
	TotalCount   int64            `json:"total_count"`
	SuccessCount int64            `json:"success_count"`
	ErrorCount   int64            `json:"error_count"`
	ErrorsByCode map[string]int64 `json:"errors_by_code,omitempty"`
	Latency      LatencyStats     `json:"latency"`
}

// LatencyStats holds latency percentile data in milliseconds
type LatencyStats struct {
	MinMS float64 `json:"min_ms"`
	P50MS float64 `json:"p50_ms"`
	P95MS float64 `json:"p95_ms"`
	MaxMS float64 `json:"max_ms"`
	AvgMS float64 `json:"avg_ms"`
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	ops := make([]OperationMetrics, 0, len(m.counts))
	for op, count := range m.counts {
		om := OperationMetrics{Operation: op, TotalCount: count}
		if byCode := m.failures[op]; len(byCode) > 0 {
			om.ErrorsByCode = make(map[string]int64, len(byCode))
			for code, n := range byCode {
				om.ErrorsByCode[code] = n
				om.ErrorCount += n
			}
		}
		om.SuccessCount = max(count-om.ErrorCount, 0)
		om.Latency = calculateLatencyStats(m.latency[op])
		ops = append(ops, om)
	}
	slow := append([]SlowRequest(nil), m.slow...)
	threshold := m.slowThreshold
	m.mu.RUnlock()

	sort.Slice(ops, func(i, j int) bool {
		if ops[i].TotalCount != ops[j].TotalCount {
			return ops[i].TotalCount > ops[j].TotalCount
		}
		return ops[i].Operation < ops[j].Operation
	})

	// Round up so a freshly started server never reports zero uptime.
	uptime := math.Ceil(time.Since(m.startTime).Seconds())
	if uptime == 0 {
		uptime = 1
	}
	return MetricsSnapshot{
		Timestamp:       time.Now(),
		UptimeSeconds:   uptime,
		Operations:      ops,
		SlowThresholdMS: float64(threshold) / float64(time.Millisecond),
		RecentSlow:      slow,
	}
}

// calculateLatencyStats computes percentiles from latency samples and returns milliseconds
func calculateLatencyStats(samples []time.Duration) LatencyStats {
	if len(samples) == 0 {
		return LatencyStats{}
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	n := len(sorted)
	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}
	toMS := func(d time.Duration) float64 {
		return float64(d) / float64(time.Millisecond)
	}
	return LatencyStats{
		MinMS: toMS(sorted[0]),
		P50MS: toMS(sorted[min(n-1, n*50/100)]),
		P95MS: toMS(sorted[min(n-1, n*95/100)]),
		MaxMS: toMS(sorted[n-1]),
		AvgMS: toMS(sum / time.Duration(n)),
	}
}
