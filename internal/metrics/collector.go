// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/agentrelay/internal/circuitbreaker"
	"github.com/BaSui01/agentrelay/workflow"
)

// DefaultNamespace 指标前缀
const DefaultNamespace = "agentrelay"

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。方法签名与各组件的回调一致，可直接作为 hook 传入。
type Collector struct {
	// 工作流指标
	workflowsTotal   *prometheus.CounterVec
	workflowDuration *prometheus.HistogramVec
	workflowSteps    prometheus.Histogram
	stepsTotal       *prometheus.CounterVec
	stepDuration     *prometheus.HistogramVec
	stepAttempts     prometheus.Histogram
	handoffsTotal    *prometheus.CounterVec
	decisionsTotal   *prometheus.CounterVec

	// Oracle 指标
	oracleCallsTotal   *prometheus.CounterVec
	oracleCallDuration *prometheus.HistogramVec

	// 远程代理指标
	agentRequestsTotal   *prometheus.CounterVec
	agentRequestDuration *prometheus.HistogramVec
	breakerTransitions   *prometheus.CounterVec
	breakerOpen          *prometheus.GaugeVec

	// 记忆指标
	memoryEntries prometheus.Gauge

	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec

	gatherer prometheus.Gatherer
	logger   *zap.Logger
}

var _ workflow.Observer = (*Collector)(nil)

// NewCollector 创建指标收集器。reg 为 nil 时注册到 prometheus 默认 registry。
func NewCollector(namespace string, reg *prometheus.Registry, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}

	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if reg != nil {
		registerer, gatherer = reg, reg
	}
	factory := promauto.With(registerer)

	c := &Collector{
		gatherer: gatherer,
		logger:   logger.With(zap.String("component", "metrics")),
	}

	// 工作流指标
	c.workflowsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflows_total",
			Help:      "Total number of finished workflows",
		},
		[]string{"status", "analyzer"},
	)

	c.workflowDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_duration_seconds",
			Help:      "Workflow execution duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 900},
		},
		[]string{"status"},
	)

	c.workflowSteps = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_steps",
			Help:      "Number of steps per finished workflow",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
		},
	)

	c.stepsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Total number of finished workflow steps",
		},
		[]string{"agent", "status"},
	)

	c.stepDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Step execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"agent"},
	)

	c.stepAttempts = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_attempts",
			Help:      "Number of attempts per finished step",
			Buckets:   []float64{1, 2, 3, 4, 5},
		},
	)

	c.handoffsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handoffs_total",
			Help:      "Total number of inserted handoff steps",
		},
		[]string{"from", "to", "reason"},
	)

	c.decisionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Total number of orchestration decisions",
		},
		[]string{"phase", "action"},
	)

	// Oracle 指标
	c.oracleCallsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_calls_total",
			Help:      "Total number of reasoning oracle calls",
		},
		[]string{"provider", "outcome"},
	)

	c.oracleCallDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "oracle_call_duration_seconds",
			Help:      "Reasoning oracle call duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider"},
	)

	// 远程代理指标
	c.agentRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_requests_total",
			Help:      "Total number of A2A requests to remote agents",
		},
		[]string{"method", "outcome"},
	)

	c.agentRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_request_duration_seconds",
			Help:      "A2A request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"method"},
	)

	c.breakerTransitions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_breaker_transitions_total",
			Help:      "Total number of per-agent circuit breaker transitions",
		},
		[]string{"agent_id", "from_state", "to_state"},
	)

	c.breakerOpen = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agent_breaker_open",
			Help:      "1 when the agent's circuit breaker is not closed",
		},
		[]string{"agent_id"},
	)

	// 记忆指标
	c.memoryEntries = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_entries",
			Help:      "Number of entries held in shared memory",
		},
	)

	// HTTP 指标
	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 数据库指标
	c.dbConnectionsOpen = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.logger.Debug("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// Handler 暴露 /metrics
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// =============================================================================
// 🔁 工作流指标记录（workflow.Observer）
// =============================================================================

// WorkflowFinished implements workflow.Observer.
func (c *Collector) WorkflowFinished(status, analyzer string, steps int, seconds float64) {
	c.workflowsTotal.WithLabelValues(status, analyzer).Inc()
	c.workflowDuration.WithLabelValues(status).Observe(seconds)
	c.workflowSteps.Observe(float64(steps))
}

// StepFinished implements workflow.Observer.
func (c *Collector) StepFinished(agent, status string, attempts int, seconds float64) {
	c.stepsTotal.WithLabelValues(agent, status).Inc()
	c.stepDuration.WithLabelValues(agent).Observe(seconds)
	c.stepAttempts.Observe(float64(attempts))
}

// HandoffInserted implements workflow.Observer.
func (c *Collector) HandoffInserted(from, to, reason string) {
	c.handoffsTotal.WithLabelValues(from, to, reason).Inc()
}

// DecisionMade implements workflow.Observer.
func (c *Collector) DecisionMade(phase, action string) {
	c.decisionsTotal.WithLabelValues(phase, action).Inc()
}

// =============================================================================
// 🤖 Oracle 与远程代理指标记录
// =============================================================================

// RecordOracleCall 与 llm.GuardConfig.OnCall 签名一致
func (c *Collector) RecordOracleCall(provider, outcome string, d time.Duration) {
	c.oracleCallsTotal.WithLabelValues(provider, outcome).Inc()
	c.oracleCallDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// RecordAgentRequest 与 a2a.RequestHook 签名一致
func (c *Collector) RecordAgentRequest(method, outcome string, d time.Duration) {
	c.agentRequestsTotal.WithLabelValues(method, outcome).Inc()
	c.agentRequestDuration.WithLabelValues(method).Observe(d.Seconds())
}

// RecordBreakerTransition 与 directory.StateChangeFunc 签名一致
func (c *Collector) RecordBreakerTransition(agentID string, from, to circuitbreaker.State) {
	c.breakerTransitions.WithLabelValues(agentID, from.String(), to.String()).Inc()
	open := 0.0
	if to != circuitbreaker.StateClosed {
		open = 1
	}
	c.breakerOpen.WithLabelValues(agentID).Set(open)
}

// SetMemoryEntries 与 memory.WithCountHook 签名一致
func (c *Collector) SetMemoryEntries(n int) {
	c.memoryEntries.Set(float64(n))
}

// =============================================================================
// 🌐 HTTP 与数据库指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
