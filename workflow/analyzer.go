package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/agentrelay/agent/directory"
	"github.com/BaSui01/agentrelay/llm"
	"go.uber.org/zap"
)

// Analyzer sources recorded in Workflow.Metadata["analyzer"].
const (
	AnalyzerOracle  = "oracle"
	AnalyzerPattern = "pattern"
)

// PreviousOutputLimit bounds the previous turn's output shown to the oracle.
const PreviousOutputLimit = 1000

// AnalyzerConfig carries the limits stamped onto every produced workflow.
type AnalyzerConfig struct {
	RetryPolicy   RetryPolicy
	MaxIterations int
}

// Analyzer turns a user request into a multi-step plan, or nil when a single
// agent should handle it.
type Analyzer struct {
	reasoner llm.Reasoner
	patterns PatternAnalyzer
	cfg      AnalyzerConfig
	logger   *zap.Logger
}

// NewAnalyzer creates an analyzer. reasoner may be nil, in which case only the
// pattern catalog is used.
func NewAnalyzer(reasoner llm.Reasoner, cfg AnalyzerConfig, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RetryPolicy.MaxRetries <= 0 {
		cfg.RetryPolicy = DefaultRetryPolicy()
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	return &Analyzer{
		reasoner: reasoner,
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "analyzer")),
	}
}

// oraclePlan is the JSON shape of the oracle's plan.
type oraclePlan struct {
	IsMultiStep         bool             `json:"is_multi_step"`
	Reasoning           string           `json:"reasoning"`
	WorkflowName        string           `json:"workflow_name"`
	WorkflowDescription string           `json:"workflow_description"`
	Steps               []oraclePlanStep `json:"steps"`
}

type oraclePlanStep struct {
	AgentName         string `json:"agent_name"`
	AgentID           string `json:"agent_id"`
	Action            string `json:"action"`
	TaskDescription   string `json:"task_description"`
	UsePreviousOutput bool   `json:"use_previous_output"`
	OutputType        string `json:"output_type"`
}

// Analyze returns an oracle plan, a pattern plan, or nil.
// When the oracle answers, its answer is final; patterns only run when the
// oracle is unavailable or fails.
func (a *Analyzer) Analyze(ctx context.Context, message string, agents []directory.Agent, previous string) *Workflow {
	if len(agents) == 0 || strings.TrimSpace(message) == "" {
		return nil
	}

	if llm.IsAvailable(a.reasoner) {
		wf, err := a.analyzeWithOracle(ctx, message, agents, previous)
		if err == nil {
			if wf == nil {
				a.logger.Debug("oracle chose single agent")
				return nil
			}
			return a.finalize(wf, message, AnalyzerOracle)
		}
		a.logger.Warn("oracle analysis failed, using patterns", zap.Error(err))
	}

	wf := a.patterns.Analyze(message, agents, previous)
	if wf == nil {
		return nil
	}
	return a.finalize(wf, message, AnalyzerPattern)
}

func (a *Analyzer) finalize(wf *Workflow, message, source string) *Workflow {
	wf.RetryPolicy = a.cfg.RetryPolicy
	wf.MaxIterations = a.cfg.MaxIterations
	if wf.Context == nil {
		wf.Context = &AgentContext{}
	}
	wf.Context.OriginalRequest = message
	wf.Context.WorkflowID = wf.ID
	wf.setMeta("analyzer", source)

	a.logger.Info("workflow planned",
		zap.String("workflow_id", wf.ID),
		zap.String("name", wf.Name),
		zap.String("analyzer", source),
		zap.Strings("agents", wf.AgentNames()),
	)
	return wf
}

func (a *Analyzer) analyzeWithOracle(ctx context.Context, message string, agents []directory.Agent, previous string) (*Workflow, error) {
	plan, err := llm.CompleteJSON[oraclePlan](ctx, a.reasoner, buildPlanPrompt(message, agents, previous))
	if err != nil {
		return nil, err
	}
	if !plan.IsMultiStep {
		return nil, nil
	}

	steps := make([]*Step, 0, len(plan.Steps))
	for _, ps := range plan.Steps {
		agent, ok := resolvePlanAgent(agents, ps.AgentID, ps.AgentName)
		if !ok {
			a.logger.Warn("dropping step with unknown agent",
				zap.String("agent_name", ps.AgentName),
				zap.String("agent_id", ps.AgentID),
			)
			continue
		}

		prompt := ps.TaskDescription
		usePrevious := ps.UsePreviousOutput
		if len(steps) == 0 {
			// 首个步骤没有上一步，改为直接内联上一轮输出
			if usePrevious && strings.TrimSpace(previous) != "" {
				prompt = fmt.Sprintf("%s\n\nPrevious output:\n```\n%s\n```", prompt, previous)
			}
			usePrevious = false
		}

		step := NewStep(agent.ID, agent.Name, ps.Action, prompt)
		step.TaskDescription = ps.TaskDescription
		step.UsePreviousOutput = usePrevious
		step.OutputType = ps.OutputType
		steps = append(steps, step)
	}

	if len(steps) == 0 {
		return nil, nil
	}

	name := plan.WorkflowName
	if name == "" {
		name = "oracle_workflow"
	}
	desc := plan.WorkflowDescription
	if desc == "" {
		desc = message
	}
	wf := New(name, desc, steps...)
	wf.Reasoning = plan.Reasoning
	return wf, nil
}

// resolvePlanAgent matches by ID, then exact name, then substring either way.
func resolvePlanAgent(agents []directory.Agent, id, name string) (directory.Agent, bool) {
	if id != "" {
		for _, a := range agents {
			if a.ID == id {
				return a, true
			}
		}
	}
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
		lower := strings.ToLower(a.Name)
		if lower == "" {
			continue
		}
		if strings.Contains(lower, name) || strings.Contains(name, lower) {
			return a, true
		}
	}
	return directory.Agent{}, false
}

func buildPlanPrompt(message string, agents []directory.Agent, previous string) string {
	var sb strings.Builder
	sb.WriteString("You plan multi-agent workflows. Decide whether the user request needs several agents working in sequence.\n\n")
	sb.WriteString("## Available agents\n")
	for _, a := range agents {
		fmt.Fprintf(&sb, "- **%s** (ID: %s)\n", a.Name, a.ID)
		if a.Description != "" {
			fmt.Fprintf(&sb, "  Description: %s\n", a.Description)
		}
		if skills := a.SkillNames(); len(skills) > 0 {
			fmt.Fprintf(&sb, "  Skills: %s\n", strings.Join(skills, ", "))
		}
	}

	fmt.Fprintf(&sb, "\n## User request\n%s\n", message)
	if strings.TrimSpace(previous) != "" {
		fmt.Fprintf(&sb, "\n## Previous response\n```\n%s\n```\n", truncateRunes(previous, PreviousOutputLimit, "..."))
	}

	sb.WriteString(`
## Rules
1. Only use agents from the list above.
2. Use a multi-step workflow only when the request clearly needs two or more agents.
3. Set use_previous_output to true when a step consumes the output of the step before it.
4. The first step never consumes a previous step.
5. A request a single agent can handle is not multi-step.

## Response format (JSON)
{"is_multi_step": true, "reasoning": "...", "workflow_name": "...", "workflow_description": "...", "steps": [{"agent_name": "...", "agent_id": "...", "action": "...", "task_description": "...", "use_previous_output": false, "output_type": "text"}]}

If the request is single-agent:
{"is_multi_step": false, "reasoning": "..."}
`)
	return sb.String()
}
