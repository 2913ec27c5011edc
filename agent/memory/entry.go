package memory

import (
	"context"
	"errors"
	"time"
)

// EntryType 记忆条目类型
type EntryType string

const (
	TypeConversation EntryType = "conversation"
	TypeWorkflow     EntryType = "workflow"
	TypeArtifact     EntryType = "artifact"
	TypeFact         EntryType = "fact"
)

// ErrNotFound 条目不存在
var ErrNotFound = errors.New("memory entry not found")

// Entry 一条记忆
type Entry struct {
	ID         string         `json:"id"`
	Type       EntryType      `json:"type"`
	Content    string         `json:"content"`
	Summary    string         `json:"summary,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Tags       []string       `json:"tags,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	AccessedAt time.Time      `json:"accessed_at"`

	// Score 仅在检索结果中有效，不持久化
	Score float64 `json:"-"`
}

// clone 深拷贝，后端之间不共享可变切片/map
func (e *Entry) clone() *Entry {
	if e == nil {
		return nil
	}
	cp := *e
	if e.Metadata != nil {
		cp.Metadata = make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			cp.Metadata[k] = v
		}
	}
	if e.Tags != nil {
		cp.Tags = append([]string(nil), e.Tags...)
	}
	return &cp
}

// hasAnyTag 任一标签命中即可
func (e *Entry) hasAnyTag(tags []string) bool {
	for _, want := range tags {
		for _, have := range e.Tags {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Query 检索条件。Type 与 Tags 为空表示不过滤。
type Query struct {
	Text  string
	Type  EntryType
	Tags  []string
	Limit int
}

// Stats 记忆统计
type Stats struct {
	TotalEntries int    `json:"total_entries"`
	MaxEntries   int    `json:"max_entries"`
	Backend      string `json:"backend"`
}

// Store 记忆存储后端。
//
// 所有实现必须并发安全；Insert 的写入与淘汰对并发检索原子可见。
type Store interface {
	// Insert 写入条目，超过 maxEntries 时按创建顺序淘汰最旧的条目，返回被淘汰的 ID
	Insert(ctx context.Context, e *Entry, maxEntries int) ([]string, error)

	// Get 按 ID 读取
	Get(ctx context.Context, id string) (*Entry, error)

	// Candidates 按类型与标签（任一命中）过滤，按插入顺序返回
	Candidates(ctx context.Context, typ EntryType, tags []string) ([]*Entry, error)

	// Touch 更新访问时间，不存在的 ID 忽略
	Touch(ctx context.Context, ids []string, at time.Time) error

	// Delete 删除条目
	Delete(ctx context.Context, id string) error

	// Count 条目总数
	Count(ctx context.Context) (int, error)

	// Name 后端名称
	Name() string
}
