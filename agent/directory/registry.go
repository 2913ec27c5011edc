package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/agentrelay/internal/circuitbreaker"
	"github.com/BaSui01/agentrelay/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Config holds registry configuration.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens an
	// agent's breaker.
	FailureThreshold int `json:"failure_threshold" yaml:"failure_threshold"`

	// OpenDuration is how long an open breaker rejects calls before a probe.
	OpenDuration time.Duration `json:"open_duration" yaml:"open_duration"`

	// LatencyWindow is the number of recent latencies kept for P95.
	LatencyWindow int `json:"latency_window" yaml:"latency_window"`

	// ProbeConcurrency bounds parallel health checks.
	ProbeConcurrency int `json:"probe_concurrency" yaml:"probe_concurrency"`

	// ProbeTimeout bounds each individual health check.
	ProbeTimeout time.Duration `json:"probe_timeout" yaml:"probe_timeout"`
}

// DefaultConfig returns the default registry configuration.
func DefaultConfig() *Config {
	return &Config{
		FailureThreshold: 3,
		OpenDuration:     60 * time.Second,
		LatencyWindow:    100,
		ProbeConcurrency: 8,
		ProbeTimeout:     10 * time.Second,
	}
}

// HealthChecker checks a single agent. A nil error means the agent is online.
type HealthChecker func(ctx context.Context, agent Agent) error

// StateChangeFunc is notified when an agent's breaker changes state.
type StateChangeFunc func(agentID string, from, to circuitbreaker.State)

type entry struct {
	mu      sync.RWMutex
	agent   Agent
	breaker circuitbreaker.CircuitBreaker
	stats   *callStats
}

func (e *entry) snapshot() Agent {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.agent.Clone()
}

// Registry is the in-memory agent directory. Lookups take a read lock on the
// index only; per-agent availability lives in lock-free breakers.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*entry
	order  []string

	config        *Config
	logger        *zap.Logger
	now           func() time.Time
	onStateChange StateChangeFunc
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the registry clock (tests).
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithStateChangeHook registers a breaker state observer, e.g. for metrics.
func WithStateChangeHook(fn StateChangeFunc) Option {
	return func(r *Registry) { r.onStateChange = fn }
}

// NewRegistry creates an empty registry.
func NewRegistry(config *Config, logger *zap.Logger, opts ...Option) *Registry {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		agents: make(map[string]*entry),
		config: config,
		logger: logger.With(zap.String("component", "agent_directory")),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds an agent. The ID and URL are required; IDs must be unique.
func (r *Registry) Register(agent Agent) error {
	if agent.ID == "" {
		return types.NewInvalidRequestError("agent id is empty")
	}
	if agent.URL == "" {
		return types.NewInvalidRequestError(fmt.Sprintf("agent %s has no url", agent.ID))
	}
	if agent.Name == "" {
		agent.Name = agent.ID
	}
	if agent.Status == "" {
		agent.Status = AgentStatusOnline
	}
	agent.URL = strings.TrimRight(agent.URL, "/")

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[agent.ID]; exists {
		return types.NewInvalidRequestError(fmt.Sprintf("agent %s already registered", agent.ID))
	}

	id := agent.ID
	cbCfg := &circuitbreaker.Config{
		Threshold:        r.config.FailureThreshold,
		ResetTimeout:     r.config.OpenDuration,
		HalfOpenMaxCalls: 1,
		OnStateChange: func(from, to circuitbreaker.State) {
			r.logger.Info("agent breaker state changed",
				zap.String("agent_id", id),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			if r.onStateChange != nil {
				r.onStateChange(id, from, to)
			}
		},
	}

	r.agents[id] = &entry{
		agent:   agent.Clone(),
		breaker: circuitbreaker.NewCircuitBreaker(cbCfg, r.logger, circuitbreaker.WithClock(r.now)),
		stats:   newCallStats(r.config.LatencyWindow),
	}
	r.order = append(r.order, id)

	r.logger.Info("agent registered",
		zap.String("agent_id", id),
		zap.String("name", agent.Name),
		zap.Int("skills", len(agent.Skills)),
	)
	return nil
}

// Unregister removes an agent.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.agents[id]; !ok {
		return types.NewAgentNotFoundError(id)
	}
	delete(r.agents, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.logger.Info("agent unregistered", zap.String("agent_id", id))
	return nil
}

func (r *Registry) get(id string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.agents[id]
	return e, ok
}

func (r *Registry) entries() []*entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*entry, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.agents[id])
	}
	return out
}

// ResolveByID returns the agent with the given id.
func (r *Registry) ResolveByID(id string) (Agent, bool) {
	e, ok := r.get(id)
	if !ok {
		return Agent{}, false
	}
	return e.snapshot(), true
}

// ResolveByName returns the first agent whose name matches case-insensitively.
func (r *Registry) ResolveByName(name string) (Agent, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return Agent{}, false
	}
	for _, e := range r.entries() {
		a := e.snapshot()
		if strings.ToLower(a.Name) == name {
			return a, true
		}
	}
	return Agent{}, false
}

// IsAvailable reports whether the agent is online and its breaker admits calls.
func (r *Registry) IsAvailable(id string) bool {
	e, ok := r.get(id)
	if !ok {
		return false
	}
	e.mu.RLock()
	online := e.agent.Status == AgentStatusOnline
	e.mu.RUnlock()
	return online && e.breaker.Available()
}

// Acquire claims permission to call the agent. It must be paired with
// RecordSuccess or RecordFailure.
func (r *Registry) Acquire(id string) error {
	e, ok := r.get(id)
	if !ok {
		return types.NewAgentNotFoundError(id)
	}
	if err := e.breaker.Allow(); err != nil {
		return types.NewError(types.ErrAgentUnavailable, "agent circuit breaker is open").
			WithAgent(id).
			WithCause(err)
	}
	return nil
}

// RecordSuccess records a successful call and its latency.
func (r *Registry) RecordSuccess(id string, latency time.Duration) {
	e, ok := r.get(id)
	if !ok {
		return
	}
	e.stats.success(latency)
	e.breaker.Record(true)
}

// RecordFailure records a failed call.
func (r *Registry) RecordFailure(id string, err error) {
	e, ok := r.get(id)
	if !ok {
		return
	}
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	e.stats.failure(msg, r.now())
	e.breaker.Record(false)

	r.logger.Debug("agent call failed",
		zap.String("agent_id", id),
		zap.Int("consecutive_failures", e.breaker.Failures()),
		zap.Error(err),
	)
}

// Release returns a permission taken by Acquire without recording an
// outcome, e.g. when the caller canceled the call.
func (r *Registry) Release(id string) {
	if e, ok := r.get(id); ok {
		e.breaker.Release()
	}
}

// Metrics returns the call metrics of an agent.
func (r *Registry) Metrics(id string) (Metrics, bool) {
	e, ok := r.get(id)
	if !ok {
		return Metrics{}, false
	}
	m := e.stats.snapshot()
	m.ConsecutiveFailures = e.breaker.Failures()
	m.BreakerState = e.breaker.State().String()
	return m, true
}

// BreakerState returns the breaker state of an agent.
func (r *Registry) BreakerState(id string) (circuitbreaker.State, bool) {
	e, ok := r.get(id)
	if !ok {
		return circuitbreaker.StateClosed, false
	}
	return e.breaker.State(), true
}

// SetStatus updates an agent's liveness state.
func (r *Registry) SetStatus(id string, status AgentStatus) error {
	e, ok := r.get(id)
	if !ok {
		return types.NewAgentNotFoundError(id)
	}
	e.mu.Lock()
	e.agent.Status = status
	e.mu.Unlock()
	return nil
}

// List returns all agents in registration order.
func (r *Registry) List() []Agent {
	es := r.entries()
	out := make([]Agent, 0, len(es))
	for _, e := range es {
		out = append(out, e.snapshot())
	}
	return out
}

// Available returns the agents that currently admit calls.
func (r *Registry) Available() []Agent {
	var out []Agent
	for _, a := range r.List() {
		if r.IsAvailable(a.ID) {
			out = append(out, a)
		}
	}
	return out
}

// Search filters online agents. Every non-empty criterion must match:
// query against name or description, any of tags against skill tags, and
// skill as a substring of a skill name.
func (r *Registry) Search(query string, tags []string, skill string) []Agent {
	query = strings.ToLower(strings.TrimSpace(query))
	skill = strings.ToLower(strings.TrimSpace(skill))
	tagSet := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			tagSet[t] = struct{}{}
		}
	}

	var out []Agent
	for _, a := range r.List() {
		if a.Status != AgentStatusOnline {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(a.Name), query) &&
			!strings.Contains(strings.ToLower(a.Description), query) {
			continue
		}
		if len(tagSet) > 0 && !hasAnyTag(a, tagSet) {
			continue
		}
		if skill != "" && !hasSkill(a, skill) {
			continue
		}
		out = append(out, a)
	}
	return out
}

func hasAnyTag(a Agent, tags map[string]struct{}) bool {
	for _, s := range a.Skills {
		for _, t := range s.Tags {
			if _, ok := tags[strings.ToLower(t)]; ok {
				return true
			}
		}
	}
	return false
}

func hasSkill(a Agent, skill string) bool {
	for _, s := range a.Skills {
		if strings.Contains(strings.ToLower(s.Name), skill) {
			return true
		}
	}
	return false
}

// Probe runs checker against every registered agent in parallel and updates
// their status. It returns the number of agents found online.
func (r *Registry) Probe(ctx context.Context, checker HealthChecker) (int, error) {
	if checker == nil {
		return 0, errors.New("health checker is nil")
	}

	agents := r.List()
	results := make([]bool, len(agents))

	g, gctx := errgroup.WithContext(ctx)
	limit := r.config.ProbeConcurrency
	if limit <= 0 {
		limit = 8
	}
	g.SetLimit(limit)

	for i, a := range agents {
		g.Go(func() error {
			pctx := gctx
			if r.config.ProbeTimeout > 0 {
				var cancel context.CancelFunc
				pctx, cancel = context.WithTimeout(gctx, r.config.ProbeTimeout)
				defer cancel()
			}
			err := checker(pctx, a)
			results[i] = err == nil
			if err != nil {
				r.logger.Debug("agent health check failed", zap.String("agent_id", a.ID), zap.Error(err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	online := 0
	for i, a := range agents {
		status := AgentStatusOffline
		if results[i] {
			status = AgentStatusOnline
			online++
		}
		// 探测期间可能已被注销
		_ = r.SetStatus(a.ID, status)
	}

	r.logger.Info("agent probe completed",
		zap.Int("total", len(agents)),
		zap.Int("online", online),
	)
	return online, nil
}
