package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/BaSui01/agentrelay/agent/directory"
	"github.com/BaSui01/agentrelay/testutil/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHandoffReason(t *testing.T) {
	assert.Equal(t, ReasonOutOfScope, ParseHandoffReason("OUT_OF_SCOPE"))
	assert.Equal(t, ReasonFollowUp, ParseHandoffReason(" follow_up "))
	assert.Equal(t, ReasonSpecialized, ParseHandoffReason(""))
	assert.Equal(t, ReasonSpecialized, ParseHandoffReason("because"))
}

func TestHandoffDetector_ExplicitBlocks(t *testing.T) {
	agents := []directory.Agent{searchAgent, docsAgent}
	d := NewHandoffDetector(nil, nil)

	tests := []struct {
		name    string
		output  string
		target  string
		task    string
		reason  HandoffReason
		context map[string]any
	}{
		{
			name:   "inline json",
			output: `Done. {"handoff": {"target": "Docs", "task": "publish", "reason": "follow_up", "context": {"space": "ENG"}}}`,
			target: "Docs", task: "publish", reason: ReasonFollowUp,
			context: map[string]any{"space": "ENG"},
		},
		{
			name:   "stray brace before block",
			output: `The template opens with { and is otherwise fine. {"handoff": {"target": "Docs", "task": "publish template"}}`,
			target: "Docs", task: "publish template", reason: ReasonSpecialized,
		},
		{
			name:   "fenced wrapper",
			output: "Result below.\n```handoff\n{\"handoff\": {\"target\": \"Docs\", \"description\": \"write page\"}}\n```\n",
			target: "Docs", task: "write page", reason: ReasonSpecialized,
		},
		{
			name:   "fenced bare object",
			output: "```handoff\n{\"target\": \"Docs\", \"task\": \"archive\", \"reason\": \"dependency\"}\n```",
			target: "Docs", task: "archive", reason: ReasonDependency,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := d.Detect(context.Background(), tt.output, agents, "Search")
			require.NotNil(t, req)
			assert.Equal(t, tt.target, req.TargetAgentName)
			assert.Equal(t, tt.task, req.TaskDescription)
			assert.Equal(t, tt.reason, req.Reason)
			assert.Equal(t, tt.context, req.Context)
		})
	}
}

func TestHandoffDetector_IgnoresUnrelatedJSON(t *testing.T) {
	d := NewHandoffDetector(nil, nil)
	out := `Here is the data: {"target": "Docs", "task": "x"} and {"count": 3}`
	assert.Nil(t, d.Detect(context.Background(), out, []directory.Agent{docsAgent}, "Search"))
}

func TestHandoffDetector_RejectsSelfHandoff(t *testing.T) {
	d := NewHandoffDetector(nil, nil)
	out := `{"handoff": {"target": "search", "task": "again"}}`
	assert.Nil(t, d.Detect(context.Background(), out, []directory.Agent{searchAgent}, "Search"))
}

func TestHandoffDetector_PhraseGateSkipsOracle(t *testing.T) {
	oracle := mocks.NewMockReasoner().WithDefault(`{"has_handoff": true, "target_agent": "Docs", "confidence": 0.9}`)
	d := NewHandoffDetector(oracle, nil)

	req := d.Detect(context.Background(), "Here are the 3 issues you asked for.", []directory.Agent{docsAgent}, "Search")
	assert.Nil(t, req)
	assert.Zero(t, oracle.CallCount())
}

func TestHandoffDetector_OracleConfirmation(t *testing.T) {
	agents := []directory.Agent{searchAgent, docsAgent}
	output := "Publishing pages should be handled by a documentation agent."

	tests := []struct {
		name     string
		response string
		want     bool
	}{
		{"confident", `{"has_handoff": true, "target_agent": "Docs", "task": "publish", "reason": "out_of_scope", "confidence": 0.85}`, true},
		{"at threshold", `{"has_handoff": true, "target_agent": "Docs", "task": "publish", "confidence": 0.6}`, false},
		{"declined", `{"has_handoff": false, "reason": "informational"}`, false},
		{"self target", `{"has_handoff": true, "target_agent": "Search", "confidence": 0.9}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oracle := mocks.NewMockReasoner().WithResponses(tt.response)
			req := NewHandoffDetector(oracle, nil).Detect(context.Background(), output, agents, "Search")
			if !tt.want {
				assert.Nil(t, req)
				return
			}
			require.NotNil(t, req)
			assert.Equal(t, "Docs", req.TargetAgentName)
			assert.Equal(t, ReasonOutOfScope, req.Reason)
			assert.Equal(t, "Confidence: 85%", req.ReasonDetail)

			prompt := oracle.LastPrompt()
			assert.Contains(t, prompt, "- Docs:")
			assert.NotContains(t, prompt, "- Search:")
		})
	}
}

func TestHandoffDetector_PatternFallback(t *testing.T) {
	agents := []directory.Agent{searchAgent, docsAgent}
	output := "This page should be handled by Docs, I only search."

	for name, d := range map[string]*HandoffDetector{
		"no oracle":    NewHandoffDetector(nil, nil),
		"oracle error": NewHandoffDetector(mocks.NewMockReasoner().WithError(errors.New("503")), nil),
	} {
		t.Run(name, func(t *testing.T) {
			req := d.Detect(context.Background(), output, agents, "Search")
			require.NotNil(t, req)
			assert.Equal(t, "Docs", req.TargetAgentName)
			assert.Equal(t, ReasonSpecialized, req.Reason)
			assert.Equal(t, "Keyword match: should be handled by", req.ReasonDetail)
			assert.True(t, strings.HasPrefix(req.TaskDescription, "Continue task based on: "))
		})
	}

	// 只有短语，没有 agent 名称
	assert.Nil(t, NewHandoffDetector(nil, nil).Detect(context.Background(), "this should be handled by someone else", agents, "Search"))
}

func TestHandoffDetector_KoreanPhrase(t *testing.T) {
	req := NewHandoffDetector(nil, nil).Detect(context.Background(), "이 작업은 Docs 에게 위임 합니다", []directory.Agent{docsAgent}, "Search")
	require.NotNil(t, req)
	assert.Equal(t, "Docs", req.TargetAgentName)
}

func TestInsertHandoff(t *testing.T) {
	agents := []directory.Agent{searchAgent, docsAgent, analystAgent}
	from := NewStep(searchAgent.ID, "Search", "search", "q")
	from.Output = strings.Repeat("x", 300)
	next := NewStep(analystAgent.ID, "Analyst", "analyze", "a")
	wf := New("wf", "", from, next)
	wf.Context = &AgentContext{OriginalRequest: "original"}

	req := &HandoffRequest{TargetAgentName: "docs", Reason: ReasonDependency, Context: map[string]any{"k": "v"}}
	step := insertHandoff(wf, from, req, agents)
	require.NotNil(t, step)

	require.Len(t, wf.Steps, 3)
	assert.Same(t, step, wf.Steps[1])
	assert.Same(t, next, wf.Steps[2])
	assert.Equal(t, docsAgent.ID, step.AgentID)
	assert.Equal(t, "handoff_dependency", step.Action)
	assert.False(t, step.Critical)
	assert.True(t, step.UsePreviousOutput)
	assert.Equal(t, StepPending, step.Status)

	require.NotNil(t, step.Context)
	assert.Equal(t, "original", step.Context.OriginalRequest)
	assert.Equal(t, map[string]any{"k": "v"}, step.Context.Metadata)
	last, ok := step.Context.LastResult()
	require.True(t, ok)
	assert.Equal(t, "Search: search", last.Step)

	require.Len(t, wf.Handoffs, 1)
	assert.Len(t, []rune(wf.Handoffs[0].Task), 100)
}

func TestInsertHandoff_Refusals(t *testing.T) {
	agents := []directory.Agent{searchAgent, docsAgent}

	from := NewStep(searchAgent.ID, "Search", "search", "q")
	wf := New("wf", "", from)
	assert.Nil(t, insertHandoff(wf, from, &HandoffRequest{TargetAgentName: "Translator"}, agents), "unknown target")
	assert.Nil(t, insertHandoff(wf, from, &HandoffRequest{TargetAgentName: "Search"}, agents), "same agent")

	wf.MaxIterations = 1
	assert.Nil(t, insertHandoff(wf, from, &HandoffRequest{TargetAgentName: "Docs"}, agents), "cap reached")
	assert.Len(t, wf.Steps, 1)
	assert.Empty(t, wf.Handoffs)
}
