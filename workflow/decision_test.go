package workflow

import (
	"fmt"
	"testing"

	"github.com/BaSui01/agentrelay/agent/directory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func ptr(f float64) *float64 { return &f }

func TestOracleDecision_ToDecision(t *testing.T) {
	agents := []directory.Agent{searchAgent, docsAgent}

	tests := []struct {
		name       string
		in         oracleDecision
		def        Action
		want       Action
		confidence float64
	}{
		{"continue", oracleDecision{Action: "continue", Confidence: ptr(0.8)}, ActionContinue, ActionContinue, 0.8},
		{"case and space", oracleDecision{Action: "  RETRY "}, ActionContinue, ActionRetry, 0.5},
		{"modify with task", oracleDecision{Action: "modify", ModifiedTask: "do it again"}, ActionContinue, ActionModify, 0.5},
		{"modify without task", oracleDecision{Action: "modify"}, ActionRetry, ActionRetry, 0.5},
		{"fallback resolved", oracleDecision{Action: "fallback", FallbackAgent: "docs"}, ActionAbort, ActionFallback, 0.5},
		{"fallback unresolved", oracleDecision{Action: "fallback", FallbackAgent: "Translator"}, ActionAbort, ActionAbort, 0.5},
		{"skip", oracleDecision{Action: "skip", Confidence: ptr(1.7)}, ActionContinue, ActionSkip, 1},
		{"abort", oracleDecision{Action: "abort", Confidence: ptr(-2)}, ActionContinue, ActionAbort, 0},
		{"empty uses default", oracleDecision{}, ActionSkip, ActionSkip, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := tt.in.toDecision(agents, tt.def)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Action())
			assert.InDelta(t, tt.confidence, d.Info().Confidence, 1e-9)
			assert.NotEmpty(t, d.Info().Reasoning)
		})
	}

	_, err := oracleDecision{Action: "escalate"}.toDecision(agents, ActionContinue)
	assert.Error(t, err)
}

func TestOracleDecision_FallbackCarriesAgent(t *testing.T) {
	d, err := oracleDecision{Action: "fallback", FallbackAgent: "Docs", UserMessage: "switching"}.
		toDecision([]directory.Agent{searchAgent, docsAgent}, ActionRetry)
	require.NoError(t, err)

	fb, ok := d.(Fallback)
	require.True(t, ok)
	assert.Equal(t, docsAgent.ID, fb.AgentID)
	assert.Equal(t, "Docs", fb.AgentName)
	assert.Equal(t, "switching", fb.UserMessage)
}

func TestFindAgentByName(t *testing.T) {
	agents := []directory.Agent{agent("1", "Docs Writer"), agent("2", "Docs"), agent("3", "Search")}

	a, ok := FindAgentByName(agents, "docs")
	require.True(t, ok)
	assert.Equal(t, "2", a.ID, "exact match beats substring")

	a, ok = FindAgentByName(agents, "writer")
	require.True(t, ok)
	assert.Equal(t, "1", a.ID)

	_, ok = FindAgentByName(agents, "")
	assert.False(t, ok)
	_, ok = FindAgentByName(nil, "Docs")
	assert.False(t, ok)
}

func TestFindAgentByName_StaysInsideAvailableAgents(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 6).Draw(rt, "n")
		agents := make([]directory.Agent, n)
		ids := make(map[string]bool, n)
		for i := range agents {
			name := rapid.StringMatching(`[A-Za-z]{1,8}`).Draw(rt, fmt.Sprintf("name%d", i))
			agents[i] = agent(fmt.Sprintf("id-%d", i), name)
			ids[agents[i].ID] = true
		}
		query := rapid.StringMatching(`[A-Za-z]{0,8}`).Draw(rt, "query")

		a, ok := FindAgentByName(agents, query)
		if ok && !ids[a.ID] {
			rt.Fatalf("resolved %q outside the available set", a.ID)
		}

		d, err := oracleDecision{Action: "fallback", FallbackAgent: query}.toDecision(agents, ActionRetry)
		require.NoError(rt, err)
		if fb, isFallback := d.(Fallback); isFallback && !ids[fb.AgentID] {
			rt.Fatalf("fallback %q outside the available set", fb.AgentID)
		}
	})
}
