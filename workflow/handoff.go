package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/BaSui01/agentrelay/agent/directory"
	"github.com/BaSui01/agentrelay/llm"
	"go.uber.org/zap"
)

// HandoffReason explains why an agent delegates.
type HandoffReason string

const (
	ReasonOutOfScope  HandoffReason = "out_of_scope"
	ReasonSpecialized HandoffReason = "specialized"
	ReasonFollowUp    HandoffReason = "follow_up"
	ReasonDependency  HandoffReason = "dependency"
	ReasonUserRequest HandoffReason = "user_request"
)

// ParseHandoffReason maps free text to a reason, defaulting to specialized.
func ParseHandoffReason(s string) HandoffReason {
	switch r := HandoffReason(strings.ToLower(strings.TrimSpace(s))); r {
	case ReasonOutOfScope, ReasonSpecialized, ReasonFollowUp, ReasonDependency, ReasonUserRequest:
		return r
	default:
		return ReasonSpecialized
	}
}

// HandoffRequest is a delegation found in an agent's output.
type HandoffRequest struct {
	TargetAgentName string         `json:"target_agent_name"`
	TaskDescription string         `json:"task_description"`
	Reason          HandoffReason  `json:"reason"`
	ReasonDetail    string         `json:"reason_detail,omitempty"`
	Context         map[string]any `json:"context,omitempty"`
}

// HandoffPhrases are the delegation phrases that gate oracle and pattern
// detection.
var HandoffPhrases = []string{
	"should be handled by",
	"better suited for",
	"recommend using",
	"delegate to",
	"hand off to",
	"transfer to",
	"this requires",
	"need to use",
	"다른 에이전트",
	"에게 위임",
	"처리해야",
}

// DefaultHandoffConfidence is the exclusive lower bound for oracle handoffs.
const DefaultHandoffConfidence = 0.6

var fencedHandoff = regexp.MustCompile("(?s)```handoff\\s*\\n(.*?)```")

// explicitHandoff is the embedded block agents may emit:
//
//	{"handoff": {"target": "Docs", "task": "...", "reason": "follow_up"}}
type explicitHandoff struct {
	Target       string         `json:"target"`
	Task         string         `json:"task"`
	Description  string         `json:"description"`
	Reason       string         `json:"reason"`
	ReasonDetail string         `json:"reason_detail"`
	Context      map[string]any `json:"context"`
}

type oracleHandoff struct {
	HasHandoff  bool    `json:"has_handoff"`
	TargetAgent string  `json:"target_agent"`
	Task        string  `json:"task"`
	Reason      string  `json:"reason"`
	Confidence  float64 `json:"confidence"`
}

// HandoffDetector finds delegation requests in step output.
type HandoffDetector struct {
	reasoner      llm.Reasoner
	minConfidence float64
	logger        *zap.Logger
}

// NewHandoffDetector creates a detector. reasoner may be nil.
func NewHandoffDetector(reasoner llm.Reasoner, logger *zap.Logger) *HandoffDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HandoffDetector{
		reasoner:      reasoner,
		minConfidence: DefaultHandoffConfidence,
		logger:        logger.With(zap.String("component", "handoff_detector")),
	}
}

// Detect returns the first handoff found in output, or nil. Detection order:
// explicit block, then phrase gate, then oracle confirmation, then the
// name-plus-phrase pattern.
func (d *HandoffDetector) Detect(ctx context.Context, output string, agents []directory.Agent, current string) *HandoffRequest {
	if strings.TrimSpace(output) == "" {
		return nil
	}

	if req := detectExplicit(output); req != nil {
		if sameAgent(req.TargetAgentName, current) {
			return nil
		}
		d.logger.Info("explicit handoff detected", zap.String("target", req.TargetAgentName))
		return req
	}

	phrase, ok := findPhrase(output)
	if !ok {
		return nil
	}

	if llm.IsAvailable(d.reasoner) {
		req, err := d.oracleDetect(ctx, output, agents, current)
		if err == nil {
			return req
		}
		d.logger.Warn("oracle handoff detection failed, using patterns", zap.Error(err))
	}

	return patternDetect(output, agents, current, phrase)
}

func detectExplicit(output string) *HandoffRequest {
	for _, m := range fencedHandoff.FindAllStringSubmatch(output, -1) {
		body := strings.TrimSpace(m[1])
		if req := decodeHandoffBlock(body, true); req != nil {
			return req
		}
	}
	for _, obj := range llm.JSONObjects(output) {
		if req := decodeHandoffBlock(obj, false); req != nil {
			return req
		}
	}
	return nil
}

// decodeHandoffBlock accepts {"handoff": {...}}; inside a fenced handoff
// block the bare inner object is accepted too.
func decodeHandoffBlock(s string, allowBare bool) *HandoffRequest {
	var wrapper struct {
		Handoff *explicitHandoff `json:"handoff"`
	}
	if err := json.Unmarshal([]byte(s), &wrapper); err != nil {
		return nil
	}
	h := wrapper.Handoff
	if h == nil && allowBare {
		var bare explicitHandoff
		if err := json.Unmarshal([]byte(s), &bare); err != nil {
			return nil
		}
		h = &bare
	}
	if h == nil || strings.TrimSpace(h.Target) == "" {
		return nil
	}
	task := h.Task
	if task == "" {
		task = h.Description
	}
	return &HandoffRequest{
		TargetAgentName: strings.TrimSpace(h.Target),
		TaskDescription: task,
		Reason:          ParseHandoffReason(h.Reason),
		ReasonDetail:    h.ReasonDetail,
		Context:         h.Context,
	}
}

func findPhrase(output string) (string, bool) {
	lower := strings.ToLower(output)
	for _, p := range HandoffPhrases {
		if strings.Contains(lower, p) {
			return p, true
		}
	}
	return "", false
}

func (d *HandoffDetector) oracleDetect(ctx context.Context, output string, agents []directory.Agent, current string) (*HandoffRequest, error) {
	var sb strings.Builder
	sb.WriteString("Analyze whether this agent response suggests handing off to another agent.\n\n")
	fmt.Fprintf(&sb, "Current Agent: %s\n\nAgent Response:\n```\n%s\n```\n\nAvailable Agents:\n",
		current, truncateRunes(output, 1500, ""))
	for _, a := range agents {
		if sameAgent(a.Name, current) {
			continue
		}
		fmt.Fprintf(&sb, "- %s: %s\n", a.Name, truncateRunes(a.Description, 100, ""))
	}
	sb.WriteString(`
If another agent should handle something, respond with JSON:
{"has_handoff": true, "target_agent": "Agent Name", "task": "what should be done", "reason": "out_of_scope|specialized|follow_up|dependency", "confidence": 0.0}

If no handoff is needed:
{"has_handoff": false, "reason": "why not"}
`)

	res, err := llm.CompleteJSON[oracleHandoff](ctx, d.reasoner, sb.String())
	if err != nil {
		return nil, err
	}
	if !res.HasHandoff || res.Confidence <= d.minConfidence || sameAgent(res.TargetAgent, current) {
		return nil, nil
	}

	d.logger.Info("oracle handoff detected",
		zap.String("target", res.TargetAgent),
		zap.Float64("confidence", res.Confidence),
	)
	return &HandoffRequest{
		TargetAgentName: res.TargetAgent,
		TaskDescription: res.Task,
		Reason:          ParseHandoffReason(res.Reason),
		ReasonDetail:    fmt.Sprintf("Confidence: %.0f%%", res.Confidence*100),
	}, nil
}

func patternDetect(output string, agents []directory.Agent, current, phrase string) *HandoffRequest {
	lower := strings.ToLower(output)
	for _, a := range agents {
		if a.Name == "" || sameAgent(a.Name, current) {
			continue
		}
		if strings.Contains(lower, strings.ToLower(a.Name)) {
			return &HandoffRequest{
				TargetAgentName: a.Name,
				TaskDescription: "Continue task based on: " + truncateRunes(output, 200, ""),
				Reason:          ReasonSpecialized,
				ReasonDetail:    "Keyword match: " + phrase,
			}
		}
	}
	return nil
}

func sameAgent(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// insertHandoff resolves the request target inside agents and inserts a
// non-critical step right after the current one. It returns nil when the
// target is unknown, is the source agent, or the iteration cap is reached.
func insertHandoff(wf *Workflow, from *Step, req *HandoffRequest, agents []directory.Agent) *Step {
	target, ok := FindAgentByName(agents, req.TargetAgentName)
	if !ok || target.ID == from.AgentID || sameAgent(target.Name, from.AgentName) {
		return nil
	}

	task := req.TaskDescription
	if strings.TrimSpace(task) == "" {
		task = "Continue task based on: " + truncateRunes(from.Output, 200, "")
	}

	hctx := &AgentContext{
		TaskDescription: task,
		WorkflowID:      wf.ID,
		StepIndex:       wf.CurrentStep + 1,
		Metadata:        req.Context,
	}
	if wf.Context != nil {
		hctx.OriginalRequest = wf.Context.OriginalRequest
	}
	hctx.AddResult(from.Label(), from.Output, true)

	step := NewStep(target.ID, target.Name, "handoff_"+string(req.Reason), task)
	step.TaskDescription = task
	step.UsePreviousOutput = true
	step.Critical = false
	step.Context = hctx

	if !wf.InsertStep(wf.CurrentStep, step) {
		return nil
	}
	wf.Handoffs = append(wf.Handoffs, HandoffRecord{
		From:   from.AgentName,
		To:     target.Name,
		Reason: string(req.Reason),
		Task:   truncateRunes(task, 100, ""),
	})
	return step
}
