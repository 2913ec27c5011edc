package directory

import (
	"sort"
	"sync"
	"time"
)

// Metrics is a point-in-time view of an agent's call history.
type Metrics struct {
	TotalRequests       int64         `json:"total_requests"`
	SuccessfulRequests  int64         `json:"successful_requests"`
	FailedRequests      int64         `json:"failed_requests"`
	SuccessRate         float64       `json:"success_rate"`
	AvgLatency          time.Duration `json:"avg_latency"`
	P95Latency          time.Duration `json:"p95_latency"`
	LastLatency         time.Duration `json:"last_latency"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	BreakerState        string        `json:"breaker_state"`
	LastError           string        `json:"last_error,omitempty"`
	LastErrorAt         time.Time     `json:"last_error_at,omitempty"`
}

// callStats 单个 Agent 的调用统计；最近延迟保存在定长环形缓冲中
type callStats struct {
	mu          sync.Mutex
	total       int64
	successes   int64
	failures    int64
	latencySum  time.Duration
	last        time.Duration
	window      []time.Duration
	next        int
	filled      bool
	lastError   string
	lastErrorAt time.Time
}

func newCallStats(window int) *callStats {
	if window <= 0 {
		window = 100
	}
	return &callStats{window: make([]time.Duration, window)}
}

func (s *callStats) success(latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	s.successes++
	s.latencySum += latency
	s.last = latency
	s.window[s.next] = latency
	s.next = (s.next + 1) % len(s.window)
	if s.next == 0 {
		s.filled = true
	}
}

func (s *callStats) failure(msg string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	s.failures++
	s.lastError = msg
	s.lastErrorAt = at
}

func (s *callStats) snapshot() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := Metrics{
		TotalRequests:      s.total,
		SuccessfulRequests: s.successes,
		FailedRequests:     s.failures,
		SuccessRate:        100,
		LastLatency:        s.last,
		LastError:          s.lastError,
		LastErrorAt:        s.lastErrorAt,
	}
	if s.total > 0 {
		m.SuccessRate = float64(s.successes) / float64(s.total) * 100
	}
	if s.successes > 0 {
		m.AvgLatency = s.latencySum / time.Duration(s.successes)
	}
	m.P95Latency = percentile95(s.recent())
	return m
}

func (s *callStats) recent() []time.Duration {
	n := s.next
	if s.filled {
		n = len(s.window)
	}
	out := make([]time.Duration, n)
	copy(out, s.window[:n])
	return out
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	idx := int(float64(len(samples)) * 0.95)
	if idx >= len(samples) {
		idx = len(samples) - 1
	}
	return samples[idx]
}
