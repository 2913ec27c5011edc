package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/agentrelay/agent/directory"
	"github.com/BaSui01/agentrelay/internal/ctxkeys"
	"github.com/BaSui01/agentrelay/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/BaSui01/agentrelay/workflow"

// SkippedPrefix marks the context entry recorded for a skipped step.
const SkippedPrefix = "[SKIPPED] "

// ExecutorConfig tunes the executor. Zero values mean no limit.
type ExecutorConfig struct {
	// StepTimeout bounds one agent call. A timeout is handled like a transport error.
	StepTimeout time.Duration
	// WorkflowTimeout bounds the whole run.
	WorkflowTimeout time.Duration
	// SoftFailureMarkers are phrases that turn a returned output into an
	// agent-logical failure, matched case-insensitively.
	SoftFailureMarkers []string
}

// ExecuteOptions carries the per-request inputs of one execution.
type ExecuteOptions struct {
	// ContextID is the conversation context forwarded to agents.
	ContextID string
	UserID    string
	// AvailableAgents scopes fallback and handoff targets.
	AvailableAgents []directory.Agent
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithSupervisor sets the step supervisor. Without one, failed attempts are
// retried until the retry policy is exhausted.
func WithSupervisor(s Supervisor) ExecutorOption {
	return func(e *Executor) { e.supervisor = s }
}

// WithHandoffDetector enables handoff detection on step output.
func WithHandoffDetector(d *HandoffDetector) ExecutorOption {
	return func(e *Executor) { e.handoffs = d }
}

// WithRecorders adds best-effort persistence hooks run after each workflow.
func WithRecorders(r ...Recorder) ExecutorOption {
	return func(e *Executor) { e.recorders = append(e.recorders, r...) }
}

// WithObserver sets the execution event observer.
func WithObserver(o Observer) ExecutorOption {
	return func(e *Executor) {
		if o != nil {
			e.observer = o
		}
	}
}

// WithSleep overrides the backoff sleep, mainly for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) ExecutorOption {
	return func(e *Executor) { e.sleep = fn }
}

// WithExecutorClock overrides the time source.
func WithExecutorClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) { e.now = now }
}

// Executor drives a workflow step by step. Steps of one workflow run strictly
// in sequence; separate workflows may run concurrently on the same Executor.
type Executor struct {
	directory  Directory
	invoker    Invoker
	cfg        ExecutorConfig
	supervisor Supervisor
	handoffs   *HandoffDetector
	recorders  []Recorder
	observer   Observer
	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time
	tracer     trace.Tracer
	logger     *zap.Logger
}

// NewExecutor creates an executor.
func NewExecutor(dir Directory, invoker Invoker, cfg ExecutorConfig, logger *zap.Logger, opts ...ExecutorOption) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{
		directory: dir,
		invoker:   invoker,
		cfg:       cfg,
		observer:  nopObserver{},
		sleep:     sleepContext,
		now:       time.Now,
		tracer:    otel.Tracer(instrumentationName),
		logger:    logger.With(zap.String("component", "workflow_executor")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// run holds the per-execution state that must not leak across workflows.
type run struct {
	wf      *Workflow
	opts    ExecuteOptions
	taskIDs []string
	logger  *zap.Logger
}

// Execute runs wf to a terminal state and returns it. Step failures never
// surface as errors; they are reported through the workflow status, the
// failed step and the final report. Only a nil workflow is an error.
func (e *Executor) Execute(ctx context.Context, wf *Workflow, opts ExecuteOptions) (*Workflow, error) {
	if wf == nil {
		return nil, types.NewInvalidRequestError("workflow is nil")
	}
	if e.cfg.WorkflowTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.WorkflowTimeout)
		defer cancel()
	}

	e.prepare(wf)
	ctx = ctxkeys.WithWorkflowID(ctx, wf.ID)
	if opts.ContextID != "" {
		ctx = ctxkeys.WithContextID(ctx, opts.ContextID)
	}

	ctx, span := e.tracer.Start(ctx, "workflow.execute", trace.WithAttributes(
		attribute.String("workflow.id", wf.ID),
		attribute.String("workflow.name", wf.Name),
		attribute.Int("workflow.steps", len(wf.Steps)),
	))
	defer span.End()

	r := &run{wf: wf, opts: opts, logger: e.logger.With(ctxkeys.Fields(ctx)...)}
	start := e.now()
	r.logger.Info("workflow started",
		zap.String("name", wf.Name),
		zap.Int("steps", len(wf.Steps)),
		zap.Int("max_iterations", wf.MaxIterations),
	)

	// len(wf.Steps) is re-read every iteration; handoffs may grow it.
	for i := 0; i < len(wf.Steps); i++ {
		wf.CurrentStep = i
		step := wf.Steps[i]

		if err := ctx.Err(); err != nil {
			e.fail(r, i, fmt.Sprintf("workflow canceled before step %d: %v", i+1, err))
			break
		}
		if step.Status.IsTerminal() {
			continue
		}

		stepCtx := ctxkeys.WithStepIndex(ctx, i)
		ok, cont := e.executeWithRecovery(stepCtx, r, step)
		if !cont {
			e.fail(r, i, step.Error)
			break
		}
		e.recordResult(wf, step, ok)
	}

	if wf.Status != StatusFailed {
		wf.Status = StatusCompleted
	}
	completed := e.now()
	wf.CompletedAt = &completed
	wf.FinalReport = BuildReport(wf)

	elapsed := completed.Sub(start)
	span.SetAttributes(attribute.String("workflow.status", string(wf.Status)))
	if wf.Status == StatusFailed {
		span.SetStatus(codes.Error, wf.Metadata["error"])
	}
	e.observer.WorkflowFinished(string(wf.Status), wf.Metadata["analyzer"], len(wf.Steps), elapsed.Seconds())
	r.logger.Info("workflow finished",
		zap.String("status", string(wf.Status)),
		zap.Int("completed", wf.CountByStatus(StepCompleted)),
		zap.Int("failed", wf.CountByStatus(StepFailed)),
		zap.Int("skipped", wf.CountByStatus(StepSkipped)),
		zap.Int("handoffs", len(wf.Handoffs)),
		zap.Duration("duration", elapsed),
	)

	e.persist(context.WithoutCancel(ctx), r)
	return wf, nil
}

// prepare normalizes limits and truncates the plan to MaxIterations.
func (e *Executor) prepare(wf *Workflow) {
	if wf.RetryPolicy.MaxRetries <= 0 {
		wf.RetryPolicy.MaxRetries = DefaultRetryPolicy().MaxRetries
	}
	if wf.RetryPolicy.ModifyLimit < 0 {
		wf.RetryPolicy.ModifyLimit = 0
	}
	if wf.MaxIterations <= 0 {
		wf.MaxIterations = DefaultMaxIterations
	}
	if len(wf.Steps) > wf.MaxIterations {
		e.logger.Warn("truncating workflow to max iterations",
			zap.String("workflow_id", wf.ID),
			zap.Int("steps", len(wf.Steps)),
			zap.Int("max_iterations", wf.MaxIterations),
		)
		wf.Steps = wf.Steps[:wf.MaxIterations]
	}
	if wf.Context == nil {
		wf.Context = &AgentContext{}
	}
	wf.Context.WorkflowID = wf.ID
	if wf.Metadata == nil {
		wf.Metadata = make(map[string]string)
	}
	wf.FailedStep = -1
	wf.Status = StatusRunning
}

func (e *Executor) fail(r *run, index int, reason string) {
	r.wf.Status = StatusFailed
	r.wf.FailedStep = index
	if reason == "" {
		reason = "step failed"
	}
	r.wf.setMeta("error", reason)
	r.logger.Warn("workflow failed", zap.Int("step", index), zap.String("error", reason))
}

// recordResult appends the finished step to the workflow-level context.
func (e *Executor) recordResult(wf *Workflow, step *Step, ok bool) {
	if ok {
		wf.Context.AddResult(step.Label(), step.Output, true)
		wf.Context.Artifacts = append(wf.Context.Artifacts, step.Artifacts...)
		return
	}
	wf.Context.AddResult(step.Label(), SkippedPrefix+step.Error, false)
}

// stepContext snapshots the workflow context for step i. A seeded handoff
// context contributes its task and metadata.
func stepContext(wf *Workflow, step *Step, index int) *AgentContext {
	c := wf.Context.Snapshot()
	c.StepIndex = index
	c.WorkflowID = wf.ID
	c.OutputFormat = step.OutputType
	c.TaskDescription = step.TaskDescription
	if seed := step.Context; seed != nil {
		if seed.TaskDescription != "" {
			c.TaskDescription = seed.TaskDescription
		}
		if len(seed.Metadata) > 0 {
			if c.Metadata == nil {
				c.Metadata = make(map[string]any, len(seed.Metadata))
			}
			for k, v := range seed.Metadata {
				c.Metadata[k] = v
			}
		}
		if _, ok := c.LastResult(); !ok {
			c.PreviousResults = append(c.PreviousResults, seed.PreviousResults...)
		}
	}
	return c
}

// attempt performs one resolved agent call and returns its output.
func (e *Executor) attempt(ctx context.Context, r *run, step *Step, n int) (*InvokeResult, error) {
	agent, ok := e.resolve(step)
	if !ok {
		return nil, types.NewAgentNotFoundError(firstNonEmpty(step.AgentName, step.AgentID))
	}
	if !e.directory.IsAvailable(agent.ID) {
		return nil, types.NewError(types.ErrAgentUnavailable, "agent is not available").
			WithAgent(agent.Name).
			WithRetryable(true)
	}

	ctx, span := e.tracer.Start(ctx, "workflow.step", trace.WithAttributes(
		attribute.String("agent.id", agent.ID),
		attribute.String("agent.name", agent.Name),
		attribute.String("step.action", step.Action),
		attribute.Int("step.attempt", n),
	))
	defer span.End()

	callCtx := ctx
	if e.cfg.StepTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.cfg.StepTimeout)
		defer cancel()
	}

	res, err := e.invoker.Invoke(callCtx, agent, InvokeRequest{
		Prompt:       BuildStepPrompt(step, step.Context),
		ContextID:    r.opts.ContextID,
		ReferenceIDs: append([]string(nil), r.taskIDs...),
		UserID:       r.opts.UserID,
	})
	if err == nil && res == nil {
		err = types.NewAgentError(agent.Name, "agent returned no result")
	}
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = types.NewError(types.ErrTimeout, fmt.Sprintf("agent call exceeded %s", e.cfg.StepTimeout)).
				WithAgent(agent.Name).
				WithRetryable(true).
				WithCause(err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if marker, found := e.softFailure(res.Content); found {
		err := types.NewAgentError(agent.Name, "agent reported failure: "+marker)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return res, nil
}

// resolve looks the step's agent up by id, then by name.
func (e *Executor) resolve(step *Step) (directory.Agent, bool) {
	if step.AgentID != "" {
		if a, ok := e.directory.ResolveByID(step.AgentID); ok {
			return a, true
		}
	}
	if step.AgentName != "" {
		return e.directory.ResolveByName(step.AgentName)
	}
	return directory.Agent{}, false
}

func (e *Executor) softFailure(output string) (string, bool) {
	if len(e.cfg.SoftFailureMarkers) == 0 {
		return "", false
	}
	lower := strings.ToLower(output)
	for _, m := range e.cfg.SoftFailureMarkers {
		if m != "" && strings.Contains(lower, strings.ToLower(m)) {
			return m, true
		}
	}
	return "", false
}

func (e *Executor) persist(ctx context.Context, r *run) {
	for _, rec := range e.recorders {
		if rec == nil {
			continue
		}
		if err := rec.RecordWorkflow(ctx, r.wf); err != nil {
			r.logger.Warn("failed to record workflow", zap.Error(err))
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
