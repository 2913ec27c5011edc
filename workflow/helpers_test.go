package workflow

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/BaSui01/agentrelay/agent/directory"
	"github.com/BaSui01/agentrelay/testutil"
	"github.com/BaSui01/agentrelay/types"
	"go.uber.org/zap"
)

// fakeDirectory resolves agents from a fixed slice.
type fakeDirectory struct {
	agents      []directory.Agent
	unavailable map[string]bool
}

func newFakeDirectory(agents ...directory.Agent) *fakeDirectory {
	return &fakeDirectory{agents: agents, unavailable: map[string]bool{}}
}

func (d *fakeDirectory) ResolveByID(id string) (directory.Agent, bool) {
	for _, a := range d.agents {
		if a.ID == id {
			return a, true
		}
	}
	return directory.Agent{}, false
}

func (d *fakeDirectory) ResolveByName(name string) (directory.Agent, bool) {
	for _, a := range d.agents {
		if strings.EqualFold(a.Name, name) {
			return a, true
		}
	}
	return directory.Agent{}, false
}

func (d *fakeDirectory) IsAvailable(id string) bool { return !d.unavailable[id] }

type invocation struct {
	Agent string
	Req   InvokeRequest
}

// fakeInvoker records every call and delegates to handler.
type fakeInvoker struct {
	mu      sync.Mutex
	calls   []invocation
	handler func(ctx context.Context, agent directory.Agent, req InvokeRequest, n int) (*InvokeResult, error)
}

func (f *fakeInvoker) Invoke(ctx context.Context, agent directory.Agent, req InvokeRequest) (*InvokeResult, error) {
	f.mu.Lock()
	n := 0
	for _, c := range f.calls {
		if c.Agent == agent.Name {
			n++
		}
	}
	f.calls = append(f.calls, invocation{Agent: agent.Name, Req: req})
	f.mu.Unlock()
	return f.handler(ctx, agent, req, n)
}

func (f *fakeInvoker) Calls() []invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]invocation(nil), f.calls...)
}

func (f *fakeInvoker) CallsTo(name string) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Agent == name {
			n++
		}
	}
	return n
}

// echoInvoker answers "<agent> result" for every call.
func echoInvoker() *fakeInvoker {
	return &fakeInvoker{handler: func(_ context.Context, a directory.Agent, _ InvokeRequest, _ int) (*InvokeResult, error) {
		return &InvokeResult{Content: a.Name + " result", State: "completed"}, nil
	}}
}

// replyInvoker answers from a per-agent output map, failing unknown agents.
func replyInvoker(outputs map[string]string) *fakeInvoker {
	return &fakeInvoker{handler: func(_ context.Context, a directory.Agent, _ InvokeRequest, _ int) (*InvokeResult, error) {
		out, ok := outputs[a.Name]
		if !ok {
			return nil, types.NewAgentError(a.Name, "no scripted output")
		}
		return &InvokeResult{Content: out, State: "completed"}, nil
	}}
}

var errConnRefused = errors.New("dial tcp: connection refused")

func failingInvoker() *fakeInvoker {
	return &fakeInvoker{handler: func(context.Context, directory.Agent, InvokeRequest, int) (*InvokeResult, error) {
		return nil, types.NewTransportError("send failed", errConnRefused)
	}}
}

func agent(id, name string) directory.Agent {
	return directory.Agent{ID: id, Name: name, URL: "http://" + id + ".local", Status: directory.AgentStatusOnline}
}

func newTestExecutor(dir Directory, inv Invoker, cfg ExecutorConfig, opts ...ExecutorOption) *Executor {
	opts = append([]ExecutorOption{WithSleep(testutil.NoSleep)}, opts...)
	return NewExecutor(dir, inv, cfg, zap.NewNop(), opts...)
}

// recordingObserver counts execution events.
type recordingObserver struct {
	mu        sync.Mutex
	workflows []string
	steps     []string
	handoffs  int
	decisions []string
}

func (o *recordingObserver) WorkflowFinished(status, _ string, _ int, _ float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.workflows = append(o.workflows, status)
}

func (o *recordingObserver) StepFinished(agent, status string, _ int, _ float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.steps = append(o.steps, agent+":"+status)
}

func (o *recordingObserver) HandoffInserted(string, string, string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.handoffs++
}

func (o *recordingObserver) DecisionMade(phase, action string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.decisions = append(o.decisions, phase+":"+action)
}

// recorderFunc adapts a function to Recorder.
type recorderFunc func(ctx context.Context, wf *Workflow) error

func (f recorderFunc) RecordWorkflow(ctx context.Context, wf *Workflow) error { return f(ctx, wf) }
