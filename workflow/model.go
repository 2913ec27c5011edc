package workflow

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the overall state of a workflow.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether no further execution can happen.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// StepStatus represents the state of a single step.
// Transitions only move forward: pending -> running -> completed|failed|skipped.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// IsTerminal reports whether the step has finished.
func (s StepStatus) IsTerminal() bool {
	return s == StepCompleted || s == StepFailed || s == StepSkipped
}

// ArtifactType classifies the payload carried between steps.
type ArtifactType string

const (
	ArtifactText     ArtifactType = "text"
	ArtifactData     ArtifactType = "data"
	ArtifactCode     ArtifactType = "code"
	ArtifactDocument ArtifactType = "document"
	ArtifactImage    ArtifactType = "image"
	ArtifactTable    ArtifactType = "table"
	ArtifactURL      ArtifactType = "url"
)

// ArtifactPreviewLimit bounds the content preview stored on an artifact.
const ArtifactPreviewLimit = 500

// Artifact is a typed payload produced by a step.
type Artifact struct {
	ID        string         `json:"id"`
	Type      ArtifactType   `json:"type"`
	Name      string         `json:"name"`
	Content   string         `json:"content"`
	MimeType  string         `json:"mime_type"`
	URL       string         `json:"url,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewArtifact creates an artifact whose content is cut to a preview.
func NewArtifact(typ ArtifactType, name, content string) Artifact {
	if typ == "" {
		typ = ArtifactText
	}
	if name == "" {
		name = "artifact"
	}
	return Artifact{
		ID:        uuid.NewString(),
		Type:      typ,
		Name:      name,
		Content:   truncateRunes(content, ArtifactPreviewLimit, "..."),
		MimeType:  "text/plain",
		CreatedAt: time.Now(),
	}
}

// StepResult is one entry in the running list of prior results.
type StepResult struct {
	Step      string    `json:"step"`
	Content   string    `json:"content"`
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
}

// AgentContext is the structured context handed to a step.
type AgentContext struct {
	TaskDescription string         `json:"task_description,omitempty"`
	OriginalRequest string         `json:"original_request"`
	PreviousResults []StepResult   `json:"previous_results,omitempty"`
	Artifacts       []Artifact     `json:"artifacts,omitempty"`
	Constraints     []string       `json:"constraints,omitempty"`
	OutputFormat    string         `json:"output_format,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	WorkflowID      string         `json:"workflow_id"`
	StepIndex       int            `json:"step_index"`
}

// AddResult appends a prior result.
func (c *AgentContext) AddResult(step, content string, success bool) {
	c.PreviousResults = append(c.PreviousResults, StepResult{
		Step:      step,
		Content:   content,
		Success:   success,
		Timestamp: time.Now(),
	})
}

// LastResult returns the most recent prior result.
func (c *AgentContext) LastResult() (StepResult, bool) {
	if c == nil || len(c.PreviousResults) == 0 {
		return StepResult{}, false
	}
	return c.PreviousResults[len(c.PreviousResults)-1], true
}

// Snapshot returns a shallow copy with its own slices, so appends made to the
// workflow-level context after this point are never visible to the snapshot.
func (c *AgentContext) Snapshot() *AgentContext {
	if c == nil {
		return &AgentContext{}
	}
	out := *c
	out.PreviousResults = append([]StepResult(nil), c.PreviousResults...)
	out.Artifacts = append([]Artifact(nil), c.Artifacts...)
	out.Constraints = append([]string(nil), c.Constraints...)
	if c.Metadata != nil {
		out.Metadata = make(map[string]any, len(c.Metadata))
		for k, v := range c.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// RetryPolicy bounds how a step is re-attempted.
type RetryPolicy struct {
	// MaxRetries is the total number of attempts for one step.
	MaxRetries int `json:"max_retries"`
	// Backoff is multiplied by (attempt+1) between attempts.
	Backoff time.Duration `json:"backoff"`
	// ModifyLimit bounds task reformulations per step.
	ModifyLimit int `json:"modify_limit"`
}

// DefaultRetryPolicy returns 3 attempts, 1s linear backoff and one modify.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, Backoff: time.Second, ModifyLimit: 1}
}

// DefaultMaxIterations caps the total number of steps a workflow may hold.
const DefaultMaxIterations = 10

// Step is a single agent invocation within a workflow.
type Step struct {
	ID                string        `json:"id"`
	AgentID           string        `json:"agent_id"`
	AgentName         string        `json:"agent_name"`
	Action            string        `json:"action"`
	Prompt            string        `json:"prompt"`
	TaskDescription   string        `json:"task_description,omitempty"`
	UsePreviousOutput bool          `json:"use_previous_output"`
	OutputType        string        `json:"output_type,omitempty"`
	Status            StepStatus    `json:"status"`
	RetryCount        int           `json:"retry_count"`
	Output            string        `json:"output,omitempty"`
	Artifacts         []Artifact    `json:"artifacts,omitempty"`
	Error             string        `json:"error,omitempty"`
	Critical          bool          `json:"is_critical"`
	Context           *AgentContext `json:"context,omitempty"`
	FallbackAgentID   string        `json:"fallback_agent_id,omitempty"`
	LastDecision      string        `json:"last_decision,omitempty"`
	StartedAt         *time.Time    `json:"started_at,omitempty"`
	CompletedAt       *time.Time    `json:"completed_at,omitempty"`
}

// NewStep creates a pending, critical step.
func NewStep(agentID, agentName, action, prompt string) *Step {
	return &Step{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		AgentName: agentName,
		Action:    action,
		Prompt:    prompt,
		Status:    StepPending,
		Critical:  true,
	}
}

// Label is the "Agent: action" name used in context results and logs.
func (s *Step) Label() string {
	return s.AgentName + ": " + s.Action
}

func (s *Step) markStarted(now time.Time) {
	if s.Status != StepPending {
		return
	}
	s.Status = StepRunning
	s.StartedAt = &now
}

// finish moves a running step to a terminal status; terminal steps are left
// untouched except for skipped downgrades of a failed non-critical step.
func (s *Step) finish(status StepStatus, now time.Time) {
	switch {
	case s.Status == StepRunning:
	case s.Status == StepFailed && status == StepSkipped:
	default:
		return
	}
	s.Status = status
	s.CompletedAt = &now
}

// HandoffRecord is stored on the workflow for every inserted handoff step.
type HandoffRecord struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason"`
	Task   string `json:"task"`
}

// Workflow is an ordered, growable plan of agent steps.
type Workflow struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Description   string            `json:"description"`
	Steps         []*Step           `json:"steps"`
	CurrentStep   int               `json:"current_step_index"`
	Status        Status            `json:"status"`
	Reasoning     string            `json:"reasoning,omitempty"`
	RetryPolicy   RetryPolicy       `json:"retry_policy"`
	MaxIterations int               `json:"max_iterations"`
	Context       *AgentContext     `json:"context,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Handoffs      []HandoffRecord   `json:"handoffs,omitempty"`
	FinalReport   string            `json:"final_report,omitempty"`
	FailedStep    int               `json:"failed_step,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
}

// New creates a pending workflow with default limits.
func New(name, description string, steps ...*Step) *Workflow {
	return &Workflow{
		ID:            uuid.NewString(),
		Name:          name,
		Description:   description,
		Steps:         steps,
		Status:        StatusPending,
		RetryPolicy:   DefaultRetryPolicy(),
		MaxIterations: DefaultMaxIterations,
		Metadata:      make(map[string]string),
		FailedStep:    -1,
		CreatedAt:     time.Now(),
	}
}

// CurrentStepPtr returns the step at CurrentStep, if any.
func (w *Workflow) CurrentStepPtr() *Step {
	if w.CurrentStep >= 0 && w.CurrentStep < len(w.Steps) {
		return w.Steps[w.CurrentStep]
	}
	return nil
}

// CountByStatus counts steps with the given status.
func (w *Workflow) CountByStatus(status StepStatus) int {
	n := 0
	for _, s := range w.Steps {
		if s.Status == status {
			n++
		}
	}
	return n
}

// AgentNames lists the agent of every step in order.
func (w *Workflow) AgentNames() []string {
	names := make([]string, 0, len(w.Steps))
	for _, s := range w.Steps {
		names = append(names, s.AgentName)
	}
	return names
}

// InsertStep inserts step right after index `after`. It refuses the insert
// when the result would exceed MaxIterations.
func (w *Workflow) InsertStep(after int, step *Step) bool {
	if w.MaxIterations > 0 && len(w.Steps)+1 > w.MaxIterations {
		return false
	}
	pos := after + 1
	if pos < 0 {
		pos = 0
	}
	if pos > len(w.Steps) {
		pos = len(w.Steps)
	}
	w.Steps = append(w.Steps, nil)
	copy(w.Steps[pos+1:], w.Steps[pos:])
	w.Steps[pos] = step
	return true
}

func (w *Workflow) setMeta(key, value string) {
	if w.Metadata == nil {
		w.Metadata = make(map[string]string)
	}
	w.Metadata[key] = value
}

// truncateRunes cuts s to at most n runes, appending suffix when cut.
func truncateRunes(s string, n int, suffix string) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i] + suffix
		}
		count++
	}
	return s
}
