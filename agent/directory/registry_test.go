package directory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BaSui01/agentrelay/internal/circuitbreaker"
	"github.com/BaSui01/agentrelay/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testAgents() []Agent {
	return []Agent{
		{
			ID: "search-1", Name: "Search", Description: "Web search agent", URL: "http://search.local/",
			Skills: []Skill{{ID: "web", Name: "web_search", Tags: []string{"search", "web"}}},
		},
		{
			ID: "docs-1", Name: "Docs", Description: "Creates confluence documents", URL: "http://docs.local",
			Skills: []Skill{{ID: "doc", Name: "create_document", Tags: []string{"document"}}},
		},
	}
}

func newTestRegistry(t *testing.T, opts ...Option) *Registry {
	t.Helper()
	r := NewRegistry(nil, zap.NewNop(), opts...)
	for _, a := range testAgents() {
		require.NoError(t, r.Register(a))
	}
	return r
}

func TestRegistry_RegisterAndResolve(t *testing.T) {
	r := newTestRegistry(t)

	a, ok := r.ResolveByID("search-1")
	require.True(t, ok)
	assert.Equal(t, "Search", a.Name)
	assert.Equal(t, "http://search.local", a.URL, "结尾斜杠应被去除")
	assert.Equal(t, AgentStatusOnline, a.Status)

	a, ok = r.ResolveByName("  docs ")
	require.True(t, ok)
	assert.Equal(t, "docs-1", a.ID)

	_, ok = r.ResolveByName("doc")
	assert.False(t, ok, "名称解析不做子串匹配")

	_, ok = r.ResolveByID("missing")
	assert.False(t, ok)

	err := r.Register(Agent{ID: "search-1", URL: "http://x"})
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))

	err = r.Register(Agent{ID: "no-url"})
	assert.Error(t, err)
}

func TestRegistry_ResolveReturnsCopy(t *testing.T) {
	r := newTestRegistry(t)

	a, _ := r.ResolveByID("search-1")
	a.Skills[0].Name = "mutated"

	b, _ := r.ResolveByID("search-1")
	assert.Equal(t, "web_search", b.Skills[0].Name)
}

func TestRegistry_Unregister(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Unregister("search-1"))
	assert.Len(t, r.List(), 1)
	assert.True(t, types.IsErrorCode(r.Unregister("search-1"), types.ErrAgentNotFound))
}

func TestRegistry_BreakerLifecycle(t *testing.T) {
	clock := newFakeClock()
	r := newTestRegistry(t, WithClock(clock.Now))

	for i := 0; i < 2; i++ {
		r.RecordFailure("search-1", errors.New("connect refused"))
	}
	assert.True(t, r.IsAvailable("search-1"), "两次失败不应熔断")

	r.RecordFailure("search-1", errors.New("connect refused"))
	assert.False(t, r.IsAvailable("search-1"))
	assert.Len(t, r.Available(), 1)

	err := r.Acquire("search-1")
	assert.True(t, types.IsErrorCode(err, types.ErrAgentUnavailable))

	clock.Advance(61 * time.Second)
	assert.True(t, r.IsAvailable("search-1"))

	require.NoError(t, r.Acquire("search-1"), "冷却结束后放行一次探测")
	assert.Error(t, r.Acquire("search-1"), "半开状态只允许一次探测")

	r.RecordSuccess("search-1", 20*time.Millisecond)
	state, _ := r.BreakerState("search-1")
	assert.Equal(t, circuitbreaker.StateClosed, state)
	assert.True(t, r.IsAvailable("search-1"))
}

func TestRegistry_BreakerIsPerAgent(t *testing.T) {
	r := newTestRegistry(t)
	for i := 0; i < 3; i++ {
		r.RecordFailure("search-1", nil)
	}
	assert.False(t, r.IsAvailable("search-1"))
	assert.True(t, r.IsAvailable("docs-1"))
}

func TestRegistry_ConcurrentFailuresOpenOnce(t *testing.T) {
	var opened atomic.Int32
	r := newTestRegistry(t, WithStateChangeHook(func(id string, from, to circuitbreaker.State) {
		if to == circuitbreaker.StateOpen {
			opened.Add(1)
		}
	}))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.RecordFailure("docs-1", errors.New("timeout"))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), opened.Load())
	m, ok := r.Metrics("docs-1")
	require.True(t, ok)
	assert.Equal(t, int64(50), m.FailedRequests)
	assert.Equal(t, "open", m.BreakerState)
}

func TestRegistry_Metrics(t *testing.T) {
	r := newTestRegistry(t)

	m, ok := r.Metrics("search-1")
	require.True(t, ok)
	assert.Equal(t, 100.0, m.SuccessRate, "无调用时成功率为 100")

	for i := 1; i <= 100; i++ {
		r.RecordSuccess("search-1", time.Duration(i)*time.Millisecond)
	}
	r.RecordFailure("search-1", errors.New("boom"))

	m, _ = r.Metrics("search-1")
	assert.Equal(t, int64(101), m.TotalRequests)
	assert.InDelta(t, 100.0/101.0*100, m.SuccessRate, 0.001)
	assert.Equal(t, 96*time.Millisecond, m.P95Latency)
	assert.Equal(t, 50500*time.Microsecond, m.AvgLatency)
	assert.Equal(t, "boom", m.LastError)
	assert.Equal(t, 1, m.ConsecutiveFailures)

	_, ok = r.Metrics("missing")
	assert.False(t, ok)
}

func TestRegistry_P95UsesRecentWindow(t *testing.T) {
	r := NewRegistry(&Config{LatencyWindow: 10}, nil)
	require.NoError(t, r.Register(Agent{ID: "a", URL: "http://a"}))

	for i := 0; i < 10; i++ {
		r.RecordSuccess("a", time.Second)
	}
	for i := 0; i < 10; i++ {
		r.RecordSuccess("a", time.Millisecond)
	}
	m, _ := r.Metrics("a")
	assert.Equal(t, time.Millisecond, m.P95Latency)
}

func TestRegistry_Search(t *testing.T) {
	r := newTestRegistry(t)

	tests := []struct {
		name  string
		query string
		tags  []string
		skill string
		want  []string
	}{
		{"query on description", "confluence", nil, "", []string{"docs-1"}},
		{"query on name", "SEARCH", nil, "", []string{"search-1"}},
		{"tags", "", []string{"Document", "other"}, "", []string{"docs-1"}},
		{"skill substring", "", nil, "search", []string{"search-1"}},
		{"combined miss", "docs", []string{"web"}, "", nil},
		{"no filters", "", nil, "", []string{"search-1", "docs-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ids []string
			for _, a := range r.Search(tt.query, tt.tags, tt.skill) {
				ids = append(ids, a.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	require.NoError(t, r.SetStatus("docs-1", AgentStatusOffline))
	assert.Empty(t, r.Search("confluence", nil, ""))
}

func TestRegistry_Probe(t *testing.T) {
	r := newTestRegistry(t)

	online, err := r.Probe(context.Background(), func(ctx context.Context, a Agent) error {
		if a.ID == "docs-1" {
			return errors.New("unreachable")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, online)
	assert.False(t, r.IsAvailable("docs-1"))
	assert.True(t, r.IsAvailable("search-1"))

	online, err = r.Probe(context.Background(), func(context.Context, Agent) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 2, online)
	assert.True(t, r.IsAvailable("docs-1"))

	_, err = r.Probe(context.Background(), nil)
	assert.Error(t, err)
}

func TestRegistry_ProbeCanceled(t *testing.T) {
	r := newTestRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Probe(ctx, func(context.Context, Agent) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAgent_SearchText(t *testing.T) {
	a := testAgents()[1]
	text := a.SearchText()
	assert.Contains(t, text, "docs")
	assert.Contains(t, text, "confluence")
	assert.Contains(t, text, "create_document")
	assert.Contains(t, text, "document")
	assert.Equal(t, []string{"create_document"}, a.SkillNames())
}
