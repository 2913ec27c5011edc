package workflow

import "strings"

// Prompt framing sent to agents when a step chains on the previous output.
const (
	ContextHeader = "[CONTEXT]"
	TaskHeader    = "[TASK]"

	// ContextCharLimit bounds the previous output embedded in a prompt.
	ContextCharLimit = 5000
	// TruncationMarker is appended when the previous output was cut.
	TruncationMarker = "\n... (data truncated)"
)

// BuildStepPrompt frames the step task for the agent. When the step uses the
// previous output and one exists, it is placed under [CONTEXT] and the task
// under [TASK]; otherwise the bare task text is returned.
func BuildStepPrompt(step *Step, ctx *AgentContext) string {
	if !step.UsePreviousOutput {
		return step.Prompt
	}
	last, ok := ctx.LastResult()
	if !ok {
		return step.Prompt
	}

	var sb strings.Builder
	sb.WriteString(ContextHeader)
	sb.WriteByte('\n')
	sb.WriteString(truncateRunes(last.Content, ContextCharLimit, TruncationMarker))
	sb.WriteString("\n\n")
	sb.WriteString(TaskHeader)
	sb.WriteByte('\n')
	sb.WriteString(step.Prompt)
	return sb.String()
}
