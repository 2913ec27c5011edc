package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/agentrelay/agent/directory"
	"github.com/BaSui01/agentrelay/llm"
	"go.uber.org/zap"
)

// Supervisor decides what happens after each step attempt.
type Supervisor interface {
	// ValidateStepResult inspects a step that returned output.
	ValidateStepResult(ctx context.Context, step *Step, wf *Workflow, agents []directory.Agent) Decision

	// DecideErrorRecovery chooses a recovery for a failed attempt.
	DecideErrorRecovery(ctx context.Context, step *Step, errMsg string, wf *Workflow, agents []directory.Agent) Decision
}

// DefaultPolicyRetries is how many failed attempts the policy retries before
// giving up on a step.
const DefaultPolicyRetries = 2

// PolicySupervisor is the deterministic floor used when no oracle is present:
// accept every result, retry twice, then skip non-critical steps and abort
// critical ones.
type PolicySupervisor struct {
	Retries int
}

// ValidateStepResult implements Supervisor.
func (p PolicySupervisor) ValidateStepResult(context.Context, *Step, *Workflow, []directory.Agent) Decision {
	return Continue{DecisionInfo{
		Reasoning:  "supervisor oracle not available, auto-continuing",
		Confidence: 0.5,
	}}
}

// DecideErrorRecovery implements Supervisor.
func (p PolicySupervisor) DecideErrorRecovery(_ context.Context, step *Step, _ string, _ *Workflow, _ []directory.Agent) Decision {
	retries := p.Retries
	if retries <= 0 {
		retries = DefaultPolicyRetries
	}
	switch {
	case step.RetryCount < retries:
		return Retry{DecisionInfo{Reasoning: "attempting retry", Confidence: 0.4}}
	case !step.Critical:
		return Skip{DecisionInfo{Reasoning: "skipping non-critical step after retries", Confidence: 0.4}}
	default:
		return Abort{DecisionInfo{Reasoning: "aborting after max retries", Confidence: 0.4}}
	}
}

// SupervisorConfig configures the oracle-backed supervisor.
type SupervisorConfig struct {
	// SoftFailureThreshold downgrades validation decisions other than continue
	// to continue when their confidence is below it. 0 disables.
	SoftFailureThreshold float64

	// PolicyRetries feeds the deterministic fallback policy.
	PolicyRetries int

	// OutputExcerpt bounds the step output shown to the oracle.
	OutputExcerpt int
}

// OracleSupervisor asks the reasoning oracle and falls back to the policy
// whenever the oracle is missing or misbehaves.
type OracleSupervisor struct {
	reasoner llm.Reasoner
	policy   PolicySupervisor
	cfg      SupervisorConfig
	logger   *zap.Logger
}

// NewOracleSupervisor creates a supervisor. A nil reasoner yields pure policy
// behavior.
func NewOracleSupervisor(reasoner llm.Reasoner, cfg SupervisorConfig, logger *zap.Logger) *OracleSupervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.OutputExcerpt <= 0 {
		cfg.OutputExcerpt = 1000
	}
	return &OracleSupervisor{
		reasoner: reasoner,
		policy:   PolicySupervisor{Retries: cfg.PolicyRetries},
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "supervisor")),
	}
}

// ValidateStepResult implements Supervisor.
func (s *OracleSupervisor) ValidateStepResult(ctx context.Context, step *Step, wf *Workflow, agents []directory.Agent) Decision {
	if !llm.IsAvailable(s.reasoner) {
		return s.policy.ValidateStepResult(ctx, step, wf, agents)
	}

	raw, err := llm.CompleteJSON[oracleDecision](ctx, s.reasoner, s.validationPrompt(step, wf, agents))
	if err != nil {
		s.logger.Warn("supervisor validation failed, continuing", zap.Error(err))
		return Continue{DecisionInfo{
			Reasoning:  fmt.Sprintf("supervisor error: %v, defaulting to continue", err),
			Confidence: 0.3,
		}}
	}

	d, err := raw.toDecision(agents, ActionContinue)
	if err != nil {
		s.logger.Warn("supervisor returned unknown action", zap.Error(err))
		return Continue{DecisionInfo{Reasoning: err.Error(), Confidence: 0.3}}
	}

	if _, ok := d.(Continue); !ok && d.Info().Confidence < s.cfg.SoftFailureThreshold {
		info := d.Info()
		info.Reasoning = fmt.Sprintf("%s decision below confidence threshold %.2f: %s",
			d.Action(), s.cfg.SoftFailureThreshold, info.Reasoning)
		d = Continue{info}
	}

	s.logger.Info("supervisor decision",
		zap.String("phase", "validation"),
		zap.String("action", string(d.Action())),
		zap.Float64("confidence", d.Info().Confidence),
	)
	return d
}

// DecideErrorRecovery implements Supervisor. Oracle failures fall through to
// the policy decision so the retry floor is kept.
func (s *OracleSupervisor) DecideErrorRecovery(ctx context.Context, step *Step, errMsg string, wf *Workflow, agents []directory.Agent) Decision {
	floor := s.policy.DecideErrorRecovery(ctx, step, errMsg, wf, agents)
	if !llm.IsAvailable(s.reasoner) {
		return floor
	}

	raw, err := llm.CompleteJSON[oracleDecision](ctx, s.reasoner, s.recoveryPrompt(step, errMsg, agents))
	if err != nil {
		s.logger.Warn("supervisor recovery failed, using policy", zap.Error(err))
		return floor
	}
	if strings.TrimSpace(raw.Action) == "" {
		return floor
	}

	d, err := raw.toDecision(agents, floor.Action())
	if err != nil {
		s.logger.Warn("supervisor returned unknown action", zap.Error(err))
		return floor
	}

	s.logger.Info("supervisor decision",
		zap.String("phase", "recovery"),
		zap.String("action", string(d.Action())),
		zap.Float64("confidence", d.Info().Confidence),
	)
	return d
}

func (s *OracleSupervisor) validationPrompt(step *Step, wf *Workflow, agents []directory.Agent) string {
	output := step.Output
	if output == "" {
		output = "(no output)"
	}
	errText := step.Error
	if errText == "" {
		errText = "none"
	}

	var sb strings.Builder
	sb.WriteString("You supervise a multi-agent workflow. Validate the result of the step that just finished and decide the next action.\n\n")
	fmt.Fprintf(&sb, "## Workflow\n- Name: %s\n- Description: %s\n- Total steps: %d\n- Current step: %d\n\n",
		wf.Name, wf.Description, len(wf.Steps), wf.CurrentStep+1)
	fmt.Fprintf(&sb, "## Finished step\n- Agent: %s\n- Action: %s\n- Status: %s\n- Error: %s\n\n",
		step.AgentName, step.Action, step.Status, errText)
	fmt.Fprintf(&sb, "## Step output (first %d chars)\n```\n%s\n```\n\n",
		s.cfg.OutputExcerpt, truncateRunes(output, s.cfg.OutputExcerpt, ""))
	fmt.Fprintf(&sb, "## Available agents (fallback options)\n%s\n\n", strings.Join(agentNames(agents), ", "))
	fmt.Fprintf(&sb, "## Next step\n%s\n\n", nextStepLine(wf))
	sb.WriteString(`## Decision rules (prefer continue)
1. continue: the step did its job reasonably well (recommended)
2. retry: only for obvious network or timeout failures
3. modify: only when the agent did something entirely different from the task
4. fallback: only when the agent failed completely and another agent fits better
5. skip: the step is optional and the workflow can proceed without it
6. abort: only for unrecoverable failures

If the output is non-empty and relevant, choose "continue". Informational replies count as done.

## Response format (JSON)
{"action": "continue|retry|modify|fallback|skip|abort", "reasoning": "...", "confidence": 0.0, "modified_task": "new task when action is modify", "fallback_agent": "agent name when action is fallback", "user_message": "optional"}
`)
	return sb.String()
}

func (s *OracleSupervisor) recoveryPrompt(step *Step, errMsg string, agents []directory.Agent) string {
	critical := "no"
	if step.Critical {
		critical = "yes"
	}

	var sb strings.Builder
	sb.WriteString("You supervise a multi-agent workflow. A step failed. Decide the recovery strategy.\n\n")
	fmt.Fprintf(&sb, "## Failed step\n- Agent: %s\n- Action: %s\n- Attempts so far: %d\n- Critical: %s\n\n",
		step.AgentName, step.Action, step.RetryCount+1, critical)
	fmt.Fprintf(&sb, "## Error\n```\n%s\n```\n\n", errMsg)
	sb.WriteString("## Alternative agents\n")
	for _, a := range agents {
		fmt.Fprintf(&sb, "- %s: %s\n", a.Name, truncateRunes(a.Description, 100, ""))
	}
	sb.WriteString(`
## Options
1. retry: transient failure, try again
2. modify: change the task instructions and retry
3. fallback: hand the step to another agent
4. skip: the step is optional
5. abort: unrecoverable, stop the workflow

## Response format (JSON)
{"action": "retry|modify|fallback|skip|abort", "reasoning": "...", "confidence": 0.0, "modified_task": "...", "fallback_agent": "...", "user_message": "..."}
`)
	return sb.String()
}

func nextStepLine(wf *Workflow) string {
	next := wf.CurrentStep + 1
	if next < len(wf.Steps) {
		return fmt.Sprintf("%s - %s", wf.Steps[next].AgentName, wf.Steps[next].Action)
	}
	return "none (last step)"
}

func agentNames(agents []directory.Agent) []string {
	names := make([]string, 0, len(agents))
	for _, a := range agents {
		names = append(names, a.Name)
	}
	return names
}
