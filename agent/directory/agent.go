package directory

import "strings"

// AgentStatus is the liveness state reported for an agent.
type AgentStatus string

const (
	AgentStatusOnline  AgentStatus = "online"
	AgentStatusOffline AgentStatus = "offline"
	AgentStatusUnknown AgentStatus = "unknown"
)

// Skill describes one capability advertised on an agent card.
type Skill struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Examples    []string `json:"examples,omitempty" yaml:"examples,omitempty"`
}

// Agent is a remotely hosted agent reachable over A2A.
type Agent struct {
	ID          string            `json:"id" yaml:"id"`
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	URL         string            `json:"url" yaml:"url"`
	Version     string            `json:"version,omitempty" yaml:"version,omitempty"`
	Skills      []Skill           `json:"skills,omitempty" yaml:"skills,omitempty"`
	Status      AgentStatus       `json:"status,omitempty" yaml:"status,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Clone returns a deep copy so callers never share slices with the registry.
func (a Agent) Clone() Agent {
	out := a
	if a.Skills != nil {
		out.Skills = make([]Skill, len(a.Skills))
		for i, s := range a.Skills {
			s.Tags = append([]string(nil), s.Tags...)
			s.Examples = append([]string(nil), s.Examples...)
			out.Skills[i] = s
		}
	}
	if a.Metadata != nil {
		out.Metadata = make(map[string]string, len(a.Metadata))
		for k, v := range a.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// SearchText returns the lower-cased name, description and skill text used
// for keyword matching.
func (a Agent) SearchText() string {
	var sb strings.Builder
	sb.WriteString(a.Name)
	sb.WriteByte(' ')
	sb.WriteString(a.Description)
	for _, s := range a.Skills {
		sb.WriteByte(' ')
		sb.WriteString(s.Name)
		sb.WriteByte(' ')
		sb.WriteString(s.Description)
		for _, t := range s.Tags {
			sb.WriteByte(' ')
			sb.WriteString(t)
		}
	}
	return strings.ToLower(sb.String())
}

// SkillNames lists the agent's skill names in card order.
func (a Agent) SkillNames() []string {
	names := make([]string, 0, len(a.Skills))
	for _, s := range a.Skills {
		names = append(names, s.Name)
	}
	return names
}
