package a2a

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/BaSui01/agentrelay/agent/directory"
)

// CardSkill 代理卡上声明的技能.
type CardSkill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Examples    []string `json:"examples,omitempty"`
}

// AgentCard 代理卡，位于 /.well-known/agent-card.json.
type AgentCard struct {
	ID          string            `json:"id,omitempty"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	URL         string            `json:"url"`
	Version     string            `json:"version,omitempty"`
	Skills      []CardSkill       `json:"skills,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Validate 检查必填字段.
func (c *AgentCard) Validate() error {
	if c.Name == "" {
		return ErrMissingName
	}
	if c.URL == "" {
		return ErrMissingURL
	}
	return nil
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// ToAgent 转换为目录条目；卡片没有 id 时由名称生成.
func (c *AgentCard) ToAgent() directory.Agent {
	id := c.ID
	if id == "" {
		id = strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(c.Name), "-"), "-")
	}
	a := directory.Agent{
		ID:          id,
		Name:        c.Name,
		Description: c.Description,
		URL:         strings.TrimRight(c.URL, "/"),
		Version:     c.Version,
		Status:      directory.AgentStatusUnknown,
		Metadata:    c.Metadata,
	}
	for _, s := range c.Skills {
		a.Skills = append(a.Skills, directory.Skill{
			ID:          s.ID,
			Name:        s.Name,
			Description: s.Description,
			Tags:        s.Tags,
			Examples:    s.Examples,
		})
	}
	return a.Clone()
}

// CardFromAgent 由目录条目生成代理卡.
func CardFromAgent(a directory.Agent) *AgentCard {
	card := &AgentCard{
		ID:          a.ID,
		Name:        a.Name,
		Description: a.Description,
		URL:         a.URL,
		Version:     a.Version,
		Metadata:    a.Metadata,
	}
	for _, s := range a.Skills {
		card.Skills = append(card.Skills, CardSkill(s))
	}
	return card
}

// Request 一次逻辑调用.
type Request struct {
	Prompt           string
	ContextID        string
	ReferenceTaskIDs []string
	UserID           string
}

// ArtifactKind 产物种类
type ArtifactKind string

const (
	ArtifactKindText ArtifactKind = "text"
	ArtifactKindData ArtifactKind = "data"
)

// Artifact 响应中的结构化产物.
type Artifact struct {
	Kind ArtifactKind    `json:"kind"`
	Name string          `json:"name,omitempty"`
	Text string          `json:"text,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Response 解析后的代理响应.
type Response struct {
	Content   string     `json:"content"`
	State     string     `json:"state"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
	TaskID    string     `json:"task_id,omitempty"`
	ContextID string     `json:"context_id,omitempty"`
}

// 任务状态
const (
	StateCompleted = "completed"
	StateFailed    = "failed"
)
