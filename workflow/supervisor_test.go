package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/BaSui01/agentrelay/agent/directory"
	"github.com/BaSui01/agentrelay/testutil/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func supervisedStep(retries int, critical bool) (*Step, *Workflow) {
	s := NewStep(searchAgent.ID, "Search", "search", "q")
	s.RetryCount = retries
	s.Critical = critical
	s.Output = "three issues found"
	return s, New("wf", "test", s)
}

func TestPolicySupervisor(t *testing.T) {
	p := PolicySupervisor{}

	s, wf := supervisedStep(0, true)
	d := p.ValidateStepResult(context.Background(), s, wf, nil)
	assert.Equal(t, ActionContinue, d.Action())
	assert.Equal(t, 0.5, d.Info().Confidence)

	tests := []struct {
		retries  int
		critical bool
		want     Action
	}{
		{0, true, ActionRetry},
		{1, false, ActionRetry},
		{2, false, ActionSkip},
		{2, true, ActionAbort},
		{5, true, ActionAbort},
	}
	for _, tt := range tests {
		s, wf := supervisedStep(tt.retries, tt.critical)
		d := p.DecideErrorRecovery(context.Background(), s, "boom", wf, nil)
		assert.Equal(t, tt.want, d.Action(), "retries=%d critical=%v", tt.retries, tt.critical)
		assert.Equal(t, 0.4, d.Info().Confidence)
	}
}

func TestOracleSupervisor_WithoutOracleMatchesPolicy(t *testing.T) {
	for _, r := range []*mocks.MockReasoner{nil, mocks.NewMockReasoner().Unavailable()} {
		var sup *OracleSupervisor
		if r == nil {
			sup = NewOracleSupervisor(nil, SupervisorConfig{}, nil)
		} else {
			sup = NewOracleSupervisor(r, SupervisorConfig{}, nil)
		}
		for retries := 0; retries < 4; retries++ {
			for _, critical := range []bool{true, false} {
				s, wf := supervisedStep(retries, critical)
				got := sup.DecideErrorRecovery(context.Background(), s, "boom", wf, nil)
				want := PolicySupervisor{}.DecideErrorRecovery(context.Background(), s, "boom", wf, nil)
				assert.Equal(t, want, got)
			}
		}
	}
}

func TestOracleSupervisor_ValidationOracleError(t *testing.T) {
	sup := NewOracleSupervisor(mocks.NewMockReasoner().WithError(errors.New("timeout")), SupervisorConfig{}, nil)
	s, wf := supervisedStep(0, true)

	d := sup.ValidateStepResult(context.Background(), s, wf, nil)
	assert.Equal(t, ActionContinue, d.Action())
	assert.Equal(t, 0.3, d.Info().Confidence)
}

func TestOracleSupervisor_RecoveryOracleErrorKeepsFloor(t *testing.T) {
	tests := []struct {
		name   string
		oracle *mocks.MockReasoner
	}{
		{"call error", mocks.NewMockReasoner().WithError(errors.New("timeout"))},
		{"malformed", mocks.NewMockReasoner().WithResponses("not json at all")},
		{"empty action", mocks.NewMockReasoner().WithResponses(`{"reasoning":"hmm"}`)},
		{"unknown action", mocks.NewMockReasoner().WithResponses(`{"action":"escalate"}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sup := NewOracleSupervisor(tt.oracle, SupervisorConfig{}, nil)

			s, wf := supervisedStep(0, true)
			assert.Equal(t, ActionRetry, sup.DecideErrorRecovery(context.Background(), s, "boom", wf, nil).Action())

			s, wf = supervisedStep(2, false)
			assert.Equal(t, ActionSkip, sup.DecideErrorRecovery(context.Background(), s, "boom", wf, nil).Action())
		})
	}
}

func TestOracleSupervisor_SoftFailureThreshold(t *testing.T) {
	oracle := mocks.NewMockReasoner().WithDefault(`{"action":"retry","reasoning":"looks odd","confidence":0.4}`)
	s, wf := supervisedStep(0, true)

	lenient := NewOracleSupervisor(oracle, SupervisorConfig{SoftFailureThreshold: 0.7}, nil)
	d := lenient.ValidateStepResult(context.Background(), s, wf, nil)
	assert.Equal(t, ActionContinue, d.Action())
	assert.Contains(t, d.Info().Reasoning, "looks odd")

	strict := NewOracleSupervisor(oracle, SupervisorConfig{}, nil)
	assert.Equal(t, ActionRetry, strict.ValidateStepResult(context.Background(), s, wf, nil).Action())
}

func TestOracleSupervisor_Prompts(t *testing.T) {
	oracle := mocks.NewMockReasoner().WithDefault(`{"action":"continue","confidence":0.9}`)
	sup := NewOracleSupervisor(oracle, SupervisorConfig{OutputExcerpt: 5}, nil)
	agents := []directory.Agent{searchAgent, docsAgent}

	s, wf := supervisedStep(0, true)
	wf.Steps = append(wf.Steps, NewStep(docsAgent.ID, "Docs", "create_document", "write"))
	sup.ValidateStepResult(context.Background(), s, wf, agents)

	prompt := oracle.LastPrompt()
	assert.Contains(t, prompt, "```\nthree\n```")
	assert.Contains(t, prompt, "Docs - create_document")
	assert.Contains(t, prompt, "Search, Docs")

	sup.DecideErrorRecovery(context.Background(), s, "connection refused", wf, agents)
	prompt = oracle.LastPrompt()
	assert.Contains(t, prompt, "connection refused")
	assert.Contains(t, prompt, "Critical: yes")
	assert.Contains(t, prompt, "- Docs:")
}

func TestOracleSupervisor_FallbackOutsideAgentsDegrades(t *testing.T) {
	oracle := mocks.NewMockReasoner().WithDefault(`{"action":"fallback","fallback_agent":"Translator","confidence":0.9}`)
	sup := NewOracleSupervisor(oracle, SupervisorConfig{}, nil)

	s, wf := supervisedStep(2, true)
	d := sup.DecideErrorRecovery(context.Background(), s, "boom", wf, []directory.Agent{searchAgent, docsAgent})
	assert.Equal(t, ActionAbort, d.Action())

	s, wf = supervisedStep(0, true)
	d = sup.DecideErrorRecovery(context.Background(), s, "boom", wf, []directory.Agent{searchAgent, docsAgent})
	require.Equal(t, ActionRetry, d.Action())
}
