package workflow

import (
	"fmt"
	"strings"
)

// Step markers used in the final report.
const (
	MarkerOK      = "[OK]"
	MarkerFail    = "[FAIL]"
	MarkerSkip    = "[SKIP]"
	MarkerPending = "[PENDING]"
)

func stepMarker(s StepStatus) string {
	switch s {
	case StepCompleted:
		return MarkerOK
	case StepFailed:
		return MarkerFail
	case StepSkipped:
		return MarkerSkip
	default:
		return MarkerPending
	}
}

// FailureSummary names the failed step, its agent and the error. It is empty
// unless the workflow failed.
func FailureSummary(wf *Workflow) string {
	if wf.Status != StatusFailed {
		return ""
	}
	errText := wf.Metadata["error"]
	if wf.FailedStep < 0 || wf.FailedStep >= len(wf.Steps) {
		return fmt.Sprintf("Workflow '%s' failed: %s", wf.Name, errText)
	}
	step := wf.Steps[wf.FailedStep]
	if step.Error != "" {
		errText = step.Error
	}
	return fmt.Sprintf("Workflow '%s' failed at step %d (%s, action %s): %s",
		wf.Name, wf.FailedStep+1, step.AgentName, step.Action, errText)
}

// BuildReport renders the human-readable result of a finished workflow,
// one section per step with a success, skip or fail marker.
func BuildReport(wf *Workflow) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "## Workflow: %s\n\n", wf.Name)
	if wf.Description != "" {
		fmt.Fprintf(&sb, "%s\n\n", wf.Description)
	}
	if wf.Reasoning != "" {
		fmt.Fprintf(&sb, "_%s_\n\n", wf.Reasoning)
	}
	if summary := FailureSummary(wf); summary != "" {
		fmt.Fprintf(&sb, "**%s**\n\n", summary)
	}

	fmt.Fprintf(&sb, "**Status:** %s (%d ok / %d fail / %d skip)\n",
		wf.Status,
		wf.CountByStatus(StepCompleted),
		wf.CountByStatus(StepFailed),
		wf.CountByStatus(StepSkipped),
	)
	if len(wf.Handoffs) > 0 {
		fmt.Fprintf(&sb, "**Handoffs:** %d\n", len(wf.Handoffs))
	}

	for i, step := range wf.Steps {
		fmt.Fprintf(&sb, "\n### %s Step %d: %s\n", stepMarker(step.Status), i+1, step.AgentName)
		fmt.Fprintf(&sb, "*Action: %s*\n", step.Action)
		if step.Output != "" {
			fmt.Fprintf(&sb, "\n%s\n", step.Output)
		}
		if step.Error != "" {
			fmt.Fprintf(&sb, "\n**Error:** %s\n", step.Error)
		}
	}
	return sb.String()
}
