package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/agentrelay/workflow"
)

// ErrNotFound 归档中不存在该工作流
var ErrNotFound = errors.New("workflow not found in history")

// DefaultListLimit List 未指定条数时的上限
const DefaultListLimit = 50

// workflowRecord workflow_history 表
type workflowRecord struct {
	WorkflowID   string     `gorm:"column:workflow_id;size:64;primaryKey"`
	Name         string     `gorm:"column:name;size:255;not null"`
	Description  string     `gorm:"column:description;type:text"`
	Status       string     `gorm:"column:status;size:32;index;not null"`
	Analyzer     string     `gorm:"column:analyzer;size:32"`
	StepCount    int        `gorm:"column:step_count;not null"`
	HandoffCount int        `gorm:"column:handoff_count;not null"`
	FailedStep   int        `gorm:"column:failed_step"`
	Report       string     `gorm:"column:report;type:text"`
	Snapshot     string     `gorm:"column:snapshot;type:text;not null"`
	CreatedAt    time.Time  `gorm:"column:created_at;index;not null"`
	CompletedAt  *time.Time `gorm:"column:completed_at"`
	ArchivedAt   time.Time  `gorm:"column:archived_at;not null"`
}

func (workflowRecord) TableName() string { return "workflow_history" }

// Summary 列表视图，不含快照
type Summary struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Status       workflow.Status `json:"status"`
	Analyzer     string          `json:"analyzer,omitempty"`
	StepCount    int             `json:"step_count"`
	HandoffCount int             `json:"handoff_count"`
	CreatedAt    time.Time       `json:"created_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// Filter List 过滤条件
type Filter struct {
	Status workflow.Status
	Limit  int
}

// Migrate 为开发环境与测试创建表结构；生产环境使用 migrate 命令
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&workflowRecord{})
}

// Store 终态工作流归档，实现 workflow.Recorder
type Store struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
}

var _ workflow.Recorder = (*Store)(nil)

// NewStore 创建归档
func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		db:     db,
		now:    time.Now,
		logger: logger.With(zap.String("component", "workflow_history")),
	}
}

// RecordWorkflow implements workflow.Recorder. 同一 ID 重复归档时覆盖旧记录。
func (s *Store) RecordWorkflow(ctx context.Context, wf *workflow.Workflow) error {
	if wf == nil || wf.ID == "" {
		return fmt.Errorf("workflow id is required")
	}
	snapshot, err := json.Marshal(wf)
	if err != nil {
		return fmt.Errorf("failed to encode workflow: %w", err)
	}

	rec := &workflowRecord{
		WorkflowID:   wf.ID,
		Name:         wf.Name,
		Description:  wf.Description,
		Status:       string(wf.Status),
		Analyzer:     wf.Metadata["analyzer"],
		StepCount:    len(wf.Steps),
		HandoffCount: len(wf.Handoffs),
		FailedStep:   wf.FailedStep,
		Report:       wf.FinalReport,
		Snapshot:     string(snapshot),
		CreatedAt:    wf.CreatedAt,
		CompletedAt:  wf.CompletedAt,
		ArchivedAt:   s.now(),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("workflow_id = ?", wf.ID).Delete(&workflowRecord{}).Error; err != nil {
			return fmt.Errorf("failed to replace workflow: %w", err)
		}
		if err := tx.Create(rec).Error; err != nil {
			return fmt.Errorf("failed to archive workflow: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug("workflow archived",
		zap.String("workflow_id", wf.ID),
		zap.String("status", string(wf.Status)),
		zap.Int("steps", len(wf.Steps)),
	)
	return nil
}

// Get 读取归档快照
func (s *Store) Get(ctx context.Context, id string) (*workflow.Workflow, error) {
	var rec workflowRecord
	err := s.db.WithContext(ctx).Where("workflow_id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow: %w", err)
	}

	var wf workflow.Workflow
	if err := json.Unmarshal([]byte(rec.Snapshot), &wf); err != nil {
		return nil, fmt.Errorf("failed to decode workflow %s: %w", id, err)
	}
	return &wf, nil
}

// List 按创建时间倒序列出
func (s *Store) List(ctx context.Context, filter Filter) ([]Summary, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	q := s.db.WithContext(ctx).Model(&workflowRecord{})
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	var recs []workflowRecord
	if err := q.Order("created_at DESC").Limit(limit).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	out := make([]Summary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, Summary{
			ID:           rec.WorkflowID,
			Name:         rec.Name,
			Status:       workflow.Status(rec.Status),
			Analyzer:     rec.Analyzer,
			StepCount:    rec.StepCount,
			HandoffCount: rec.HandoffCount,
			CreatedAt:    rec.CreatedAt,
			CompletedAt:  rec.CompletedAt,
		})
	}
	return out, nil
}

// Prune 删除归档时间早于 before 的记录，返回删除条数
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("archived_at < ?", before).Delete(&workflowRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to prune history: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		s.logger.Info("pruned workflow history", zap.Int64("count", res.RowsAffected))
	}
	return res.RowsAffected, nil
}
