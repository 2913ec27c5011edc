package workflow

import (
	"context"

	"github.com/BaSui01/agentrelay/agent/directory"
)

// Directory resolves agents and reports their liveness. The executor never
// mutates it.
type Directory interface {
	ResolveByID(id string) (directory.Agent, bool)
	ResolveByName(name string) (directory.Agent, bool)
	IsAvailable(id string) bool
}

// InvokeRequest is one logical call to an agent.
type InvokeRequest struct {
	Prompt       string
	ContextID    string
	ReferenceIDs []string
	UserID       string
}

// InvokeResult is the agent's reply.
type InvokeResult struct {
	Content   string
	State     string
	Artifacts []Artifact
	TaskID    string
}

// Invoker calls a remote agent. Transport-level retries happen inside the
// invoker; an error returned here counts as one failed step attempt.
type Invoker interface {
	Invoke(ctx context.Context, agent directory.Agent, req InvokeRequest) (*InvokeResult, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, agent directory.Agent, req InvokeRequest) (*InvokeResult, error)

// Invoke implements Invoker.
func (f InvokerFunc) Invoke(ctx context.Context, agent directory.Agent, req InvokeRequest) (*InvokeResult, error) {
	return f(ctx, agent, req)
}

// Recorder persists terminal workflows. Failures are logged, never fatal.
type Recorder interface {
	RecordWorkflow(ctx context.Context, wf *Workflow) error
}

// Observer receives execution events, typically for metrics.
type Observer interface {
	WorkflowFinished(status, analyzer string, steps int, seconds float64)
	StepFinished(agent, status string, attempts int, seconds float64)
	HandoffInserted(from, to, reason string)
	DecisionMade(phase, action string)
}

type nopObserver struct{}

func (nopObserver) WorkflowFinished(string, string, int, float64) {}
func (nopObserver) StepFinished(string, string, int, float64)     {}
func (nopObserver) HandoffInserted(string, string, string)        {}
func (nopObserver) DecisionMade(string, string)                   {}
