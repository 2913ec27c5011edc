package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func finishedStep(agent string, status StepStatus, output, errText string) *Step {
	now := time.Now()
	s := NewStep("id-"+agent, agent, "act", "p")
	s.markStarted(now)
	if status == StepSkipped {
		s.finish(StepFailed, now)
	}
	s.finish(status, now)
	s.Output = output
	s.Error = errText
	return s
}

func TestBuildReport(t *testing.T) {
	wf := New("research", "find and publish",
		finishedStep("Search", StepCompleted, "3 issues", ""),
		finishedStep("Docs", StepSkipped, "", "docs offline"),
		finishedStep("Analyst", StepCompleted, "looks fine", ""),
	)
	wf.Status = StatusCompleted
	wf.Reasoning = "two agents needed"

	report := BuildReport(wf)
	assert.Contains(t, report, "## Workflow: research")
	assert.Contains(t, report, "_two agents needed_")
	assert.Contains(t, report, "2 ok / 0 fail / 1 skip")
	assert.Contains(t, report, "### [OK] Step 1: Search\n*Action: act*\n\n3 issues\n")
	assert.Contains(t, report, "### [SKIP] Step 2: Docs")
	assert.Contains(t, report, "**Error:** docs offline")
	assert.NotContains(t, report, "failed at")
}

func TestFailureSummary(t *testing.T) {
	wf := New("research", "",
		finishedStep("Search", StepCompleted, "ok", ""),
		finishedStep("Docs", StepFailed, "", "[TRANSPORT_ERROR] send failed"),
	)
	wf.Status = StatusCompleted
	assert.Empty(t, FailureSummary(wf))

	wf.Status = StatusFailed
	wf.FailedStep = 1
	assert.Equal(t, "Workflow 'research' failed at step 2 (Docs, action act): [TRANSPORT_ERROR] send failed", FailureSummary(wf))
	assert.Contains(t, BuildReport(wf), "### [FAIL] Step 2: Docs")

	wf.FailedStep = -1
	wf.Metadata["error"] = "canceled"
	assert.Equal(t, "Workflow 'research' failed: canceled", FailureSummary(wf))
}
