package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agentrelay/internal/ctxkeys"
	"github.com/BaSui01/agentrelay/llm"
	"github.com/BaSui01/agentrelay/workflow"
)

const (
	// DefaultMaxEntries 默认容量
	DefaultMaxEntries = 1000
	// DefaultLimit 检索默认条数
	DefaultLimit = 5
	// DefaultContextLimit GetRelevantContext 默认条数
	DefaultContextLimit = 3

	summaryLimit       = 200
	summaryInputLimit  = 1000
	contextExcerpt     = 300
	workflowStepOutput = 200
)

// Config 记忆配置
type Config struct {
	MaxEntries int `yaml:"max_entries" json:"max_entries"`
}

// Option 可选项
type Option func(*Memory)

// WithReasoner 使用 Oracle 生成摘要；缺省时截取前 200 字符
func WithReasoner(r llm.Reasoner) Option {
	return func(m *Memory) { m.reasoner = r }
}

// WithClock 替换时钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// WithCountHook 每次写入后回调当前条目总数，用于指标
func WithCountHook(fn func(int)) Option {
	return func(m *Memory) { m.onCount = fn }
}

// Memory 跨工作流的共享记忆。并发安全性由 Store 保证。
type Memory struct {
	store      Store
	maxEntries int
	reasoner   llm.Reasoner
	now        func() time.Time
	onCount    func(int)
	logger     *zap.Logger
}

// NewMemory 创建记忆服务
func NewMemory(store Store, cfg Config, logger *zap.Logger, opts ...Option) *Memory {
	if logger == nil {
		logger = zap.NewNop()
	}
	if store == nil {
		store = NewInMemoryStore(logger)
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	m := &Memory{
		store:      store,
		maxEntries: cfg.MaxEntries,
		now:        time.Now,
		logger:     logger.With(zap.String("component", "memory")),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store 写入一条记忆
func (m *Memory) Store(ctx context.Context, content string, typ EntryType, metadata map[string]any, tags []string) (*Entry, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("memory content is required")
	}
	if typ == "" {
		typ = TypeConversation
	}
	now := m.now()
	e := &Entry{
		ID:         uuid.NewString(),
		Type:       typ,
		Content:    content,
		Summary:    m.summarize(ctx, content),
		Metadata:   metadata,
		Tags:       dedupe(tags),
		CreatedAt:  now,
		AccessedAt: now,
	}

	evicted, err := m.store.Insert(ctx, e, m.maxEntries)
	if err != nil {
		return nil, fmt.Errorf("store memory entry: %w", err)
	}
	if len(evicted) > 0 {
		m.logger.Debug("evicted old entries", zap.Int("count", len(evicted)))
	}
	m.reportCount(ctx)

	m.logger.Debug("stored entry",
		append(ctxkeys.Fields(ctx),
			zap.String("entry_id", e.ID),
			zap.String("type", string(typ)),
			zap.Int("tags", len(e.Tags)),
		)...,
	)
	return e.clone(), nil
}

// Retrieve 按相关度检索。
// 结果按分数降序，同分保持插入顺序；只返回分数大于 0 的条目（空查询除外）。
func (m *Memory) Retrieve(ctx context.Context, q Query) ([]*Entry, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	candidates, err := m.store.Candidates(ctx, q.Type, q.Tags)
	if err != nil {
		return nil, fmt.Errorf("load memory candidates: %w", err)
	}

	now := m.now()
	browse := strings.TrimSpace(q.Text) == ""
	scored := make([]*Entry, 0, len(candidates))
	for _, e := range candidates {
		e.Score = Score(e, q.Text, now)
		if e.Score > 0 || browse {
			scored = append(scored, e)
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}

	if len(scored) > 0 {
		ids := make([]string, len(scored))
		for i, e := range scored {
			ids[i] = e.ID
			e.AccessedAt = now
		}
		if err := m.store.Touch(ctx, ids, now); err != nil {
			m.logger.Warn("failed to update access time", zap.Error(err))
		}
	}

	m.logger.Debug("retrieved entries",
		zap.String("query", truncate(q.Text, 50)),
		zap.Int("candidates", len(candidates)),
		zap.Int("results", len(scored)),
	)
	return scored, nil
}

// Get 按 ID 读取
func (m *Memory) Get(ctx context.Context, id string) (*Entry, error) {
	return m.store.Get(ctx, id)
}

// Delete 删除条目
func (m *Memory) Delete(ctx context.Context, id string) error {
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	m.reportCount(ctx)
	return nil
}

// StoreWorkflowResult 把终态工作流写成一条 workflow 类型的记忆
func (m *Memory) StoreWorkflowResult(ctx context.Context, wf *workflow.Workflow) (*Entry, error) {
	if wf == nil {
		return nil, fmt.Errorf("workflow is nil")
	}

	lines := []string{
		"Workflow: " + wf.Name,
		"Description: " + wf.Description,
		"Status: " + string(wf.Status),
		fmt.Sprintf("Steps: %d", len(wf.Steps)),
	}
	tags := []string{"workflow", wf.Name}
	for i, s := range wf.Steps {
		lines = append(lines, fmt.Sprintf("  Step %d: %s - %s", i+1, s.AgentName, s.Action))
		if s.Output != "" {
			lines = append(lines, "    Output: "+truncate(s.Output, workflowStepOutput)+"...")
		}
		tags = append(tags, agentTag(s.AgentName))
	}

	return m.Store(ctx, strings.Join(lines, "\n"), TypeWorkflow, map[string]any{
		"workflow_id":   wf.ID,
		"workflow_name": wf.Name,
		"status":        string(wf.Status),
		"steps_count":   len(wf.Steps),
	}, tags)
}

// RecordWorkflow 实现 workflow.Recorder。只记住完成的工作流，
// 失败的运行留给归档，不进入后续对话的上下文。
func (m *Memory) RecordWorkflow(ctx context.Context, wf *workflow.Workflow) error {
	if wf == nil || wf.Status != workflow.StatusCompleted {
		return nil
	}
	_, err := m.StoreWorkflowResult(ctx, wf)
	return err
}

// GetRelevantContext 检索与消息相关的记忆并格式化为 prompt 片段；无命中返回空串
func (m *Memory) GetRelevantContext(ctx context.Context, message string, limit int) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", nil
	}
	if limit <= 0 {
		limit = DefaultContextLimit
	}
	entries, err := m.Retrieve(ctx, Query{Text: message, Limit: limit})
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", nil
	}

	parts := []string{"## Relevant Context from Memory:"}
	for i, e := range entries {
		parts = append(parts, fmt.Sprintf("\n### Memory %d (%s):", i+1, e.Type))
		if e.Summary != "" {
			parts = append(parts, e.Summary)
		} else {
			parts = append(parts, truncate(e.Content, contextExcerpt))
		}
	}
	return strings.Join(parts, "\n"), nil
}

// Stats 返回统计
func (m *Memory) Stats(ctx context.Context) (Stats, error) {
	n, err := m.store.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{TotalEntries: n, MaxEntries: m.maxEntries, Backend: m.store.Name()}, nil
}

func (m *Memory) summarize(ctx context.Context, content string) string {
	if !llm.IsAvailable(m.reasoner) {
		return truncate(content, summaryLimit)
	}
	out, err := llm.Complete(ctx, m.reasoner, "Summarize in 1-2 sentences:\n"+truncate(content, summaryInputLimit), false)
	if err != nil || strings.TrimSpace(out) == "" {
		m.logger.Debug("summary generation failed", zap.Error(err))
		return truncate(content, summaryLimit)
	}
	return truncate(strings.TrimSpace(out), summaryLimit)
}

func (m *Memory) reportCount(ctx context.Context) {
	if m.onCount == nil {
		return
	}
	n, err := m.store.Count(ctx)
	if err != nil {
		return
	}
	m.onCount(n)
}

func agentTag(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "_")
}

func dedupe(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
