package workflow

import (
	"fmt"
	"strings"

	"github.com/BaSui01/agentrelay/agent/directory"
)

// Action is the label of a supervisor decision.
type Action string

const (
	ActionContinue Action = "continue"
	ActionRetry    Action = "retry"
	ActionModify   Action = "modify"
	ActionFallback Action = "fallback"
	ActionSkip     Action = "skip"
	ActionAbort    Action = "abort"
)

// Decision is what the supervisor wants done after a step attempt.
// The concrete types are Continue, Retry, Modify, Fallback, Skip and Abort.
//
//sumtype:decl
type Decision interface {
	Action() Action
	Info() DecisionInfo
	sealed()
}

// DecisionInfo is shared by every decision.
type DecisionInfo struct {
	Reasoning   string  `json:"reasoning"`
	Confidence  float64 `json:"confidence"`
	UserMessage string  `json:"user_message,omitempty"`
}

type (
	// Continue accepts the step result.
	Continue struct{ DecisionInfo }
	// Retry re-attempts the step unchanged.
	Retry struct{ DecisionInfo }
	// Modify re-attempts the step with a reformulated task.
	Modify struct {
		DecisionInfo
		Task string
	}
	// Fallback re-attempts the step against another agent.
	Fallback struct {
		DecisionInfo
		AgentID   string
		AgentName string
	}
	// Skip gives up on a non-critical step and keeps the workflow going.
	Skip struct{ DecisionInfo }
	// Abort fails the workflow.
	Abort struct{ DecisionInfo }
)

func (Continue) Action() Action { return ActionContinue }
func (Retry) Action() Action    { return ActionRetry }
func (Modify) Action() Action   { return ActionModify }
func (Fallback) Action() Action { return ActionFallback }
func (Skip) Action() Action     { return ActionSkip }
func (Abort) Action() Action    { return ActionAbort }

func (d Continue) Info() DecisionInfo { return d.DecisionInfo }
func (d Retry) Info() DecisionInfo    { return d.DecisionInfo }
func (d Modify) Info() DecisionInfo   { return d.DecisionInfo }
func (d Fallback) Info() DecisionInfo { return d.DecisionInfo }
func (d Skip) Info() DecisionInfo     { return d.DecisionInfo }
func (d Abort) Info() DecisionInfo    { return d.DecisionInfo }

func (Continue) sealed() {}
func (Retry) sealed()    {}
func (Modify) sealed()   {}
func (Fallback) sealed() {}
func (Skip) sealed()     {}
func (Abort) sealed()    {}

// oracleDecision is the JSON shape the oracle answers with.
type oracleDecision struct {
	Action        string   `json:"action"`
	Reasoning     string   `json:"reasoning"`
	Confidence    *float64 `json:"confidence"`
	ModifiedTask  string   `json:"modified_task"`
	FallbackAgent string   `json:"fallback_agent"`
	UserMessage   string   `json:"user_message"`
}

// toDecision converts an oracle answer. Fallback targets are resolved only
// inside agents; a modify without a task or a fallback without a resolvable
// agent degrades to the given default action.
func (o oracleDecision) toDecision(agents []directory.Agent, def Action) (Decision, error) {
	info := DecisionInfo{
		Reasoning:   o.Reasoning,
		Confidence:  0.5,
		UserMessage: o.UserMessage,
	}
	if o.Confidence != nil {
		info.Confidence = clamp01(*o.Confidence)
	}
	if info.Reasoning == "" {
		info.Reasoning = "no reasoning provided"
	}

	action := Action(strings.ToLower(strings.TrimSpace(o.Action)))
	if action == "" {
		action = def
	}

	switch action {
	case ActionContinue:
		return Continue{info}, nil
	case ActionRetry:
		return Retry{info}, nil
	case ActionModify:
		if strings.TrimSpace(o.ModifiedTask) == "" {
			return fromAction(def, info), nil
		}
		return Modify{DecisionInfo: info, Task: o.ModifiedTask}, nil
	case ActionFallback:
		agent, ok := FindAgentByName(agents, o.FallbackAgent)
		if !ok {
			return fromAction(def, info), nil
		}
		return Fallback{DecisionInfo: info, AgentID: agent.ID, AgentName: agent.Name}, nil
	case ActionSkip:
		return Skip{info}, nil
	case ActionAbort:
		return Abort{info}, nil
	default:
		return nil, fmt.Errorf("unknown supervisor action %q", o.Action)
	}
}

func fromAction(a Action, info DecisionInfo) Decision {
	switch a {
	case ActionRetry:
		return Retry{info}
	case ActionSkip:
		return Skip{info}
	case ActionAbort:
		return Abort{info}
	default:
		return Continue{info}
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// FindAgentByName resolves name inside agents: exact case-insensitive match
// first, then substring of the agent name. Only members of agents are returned.
func FindAgentByName(agents []directory.Agent, name string) (directory.Agent, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return directory.Agent{}, false
	}
	for _, a := range agents {
		if strings.ToLower(a.Name) == name {
			return a, true
		}
	}
	for _, a := range agents {
		if strings.Contains(strings.ToLower(a.Name), name) {
			return a, true
		}
	}
	return directory.Agent{}, false
}
