package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentrelay/internal/circuitbreaker"
)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	return NewCollector("test", prometheus.NewRegistry(), zap.NewNop())
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	c := newTestCollector(t)

	assert.NotNil(t, c.workflowsTotal)
	assert.NotNil(t, c.stepsTotal)
	assert.NotNil(t, c.oracleCallsTotal)
	assert.NotNil(t, c.agentRequestsTotal)
	assert.NotNil(t, c.memoryEntries)
}

func TestNewCollector_SeparateRegistries(t *testing.T) {
	// 同名指标注册到不同 registry 不冲突
	assert.NotPanics(t, func() {
		NewCollector("", prometheus.NewRegistry(), nil)
		NewCollector("", prometheus.NewRegistry(), nil)
	})
}

func TestCollector_WorkflowObserver(t *testing.T) {
	c := newTestCollector(t)

	c.WorkflowFinished("completed", "oracle", 3, 12.5)
	c.WorkflowFinished("completed", "oracle", 2, 4)
	c.WorkflowFinished("failed", "fallback", 1, 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.workflowsTotal.WithLabelValues("completed", "oracle")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.workflowsTotal.WithLabelValues("failed", "fallback")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.workflowDuration))

	c.StepFinished("Researcher", "completed", 2, 0.8)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.stepsTotal.WithLabelValues("Researcher", "completed")))

	c.HandoffInserted("Researcher", "Writer", "needs drafting")
	assert.Equal(t, 1.0, testutil.ToFloat64(c.handoffsTotal.WithLabelValues("Researcher", "Writer", "needs drafting")))

	c.DecisionMade("supervisor", "retry")
	c.DecisionMade("supervisor", "retry")
	assert.Equal(t, 2.0, testutil.ToFloat64(c.decisionsTotal.WithLabelValues("supervisor", "retry")))
}

func TestCollector_RecordOracleAndAgentCalls(t *testing.T) {
	c := newTestCollector(t)

	c.RecordOracleCall("openai", "success", 300*time.Millisecond)
	c.RecordOracleCall("openai", "cache_hit", time.Millisecond)
	c.RecordAgentRequest("SendMessage", "ok", time.Second)
	c.RecordAgentRequest("message/send", "http_error", time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.oracleCallsTotal.WithLabelValues("openai", "cache_hit")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.oracleCallsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.agentRequestsTotal.WithLabelValues("message/send", "http_error")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.agentRequestDuration))
}

func TestCollector_RecordBreakerTransition(t *testing.T) {
	c := newTestCollector(t)

	c.RecordBreakerTransition("a1", circuitbreaker.StateClosed, circuitbreaker.StateOpen)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.breakerOpen.WithLabelValues("a1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.breakerTransitions.WithLabelValues("a1", "closed", "open")))

	c.RecordBreakerTransition("a1", circuitbreaker.StateOpen, circuitbreaker.StateHalfOpen)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.breakerOpen.WithLabelValues("a1")))

	c.RecordBreakerTransition("a1", circuitbreaker.StateHalfOpen, circuitbreaker.StateClosed)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.breakerOpen.WithLabelValues("a1")))
}

func TestCollector_MemoryAndDatabase(t *testing.T) {
	c := newTestCollector(t)

	c.SetMemoryEntries(42)
	assert.Equal(t, 42.0, testutil.ToFloat64(c.memoryEntries))

	c.RecordDBConnections("sqlite", 4, 3)
	assert.Equal(t, 4.0, testutil.ToFloat64(c.dbConnectionsOpen.WithLabelValues("sqlite")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.dbConnectionsIdle.WithLabelValues("sqlite")))
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	c := newTestCollector(t)

	c.RecordHTTPRequest("POST", "/tasks/send", 200, 100*time.Millisecond)
	c.RecordHTTPRequest("POST", "/tasks/send", 201, 50*time.Millisecond)
	c.RecordHTTPRequest("GET", "/health", 503, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("POST", "/tasks/send", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("GET", "/health", "5xx")))
}

func TestCollector_Handler(t *testing.T) {
	c := newTestCollector(t)
	c.WorkflowFinished("completed", "oracle", 1, 1)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "test_workflows_total"))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	c := newTestCollector(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.StepFinished("Writer", "completed", 1, 0.1)
			c.RecordOracleCall("anthropic", "success", time.Millisecond)
			c.SetMemoryEntries(i)
		}()
	}
	wg.Wait()

	assert.Equal(t, 10.0, testutil.ToFloat64(c.stepsTotal.WithLabelValues("Writer", "completed")))
	assert.Equal(t, 10.0, testutil.ToFloat64(c.oracleCallsTotal.WithLabelValues("anthropic", "success")))
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"}, {302, "3xx"}, {404, "4xx"}, {502, "5xx"}, {0, "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusCode(tt.code))
	}
}
