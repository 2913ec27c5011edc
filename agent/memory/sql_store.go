package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// entryRecord memory_entries 表。
// seq 自增主键即插入顺序，淘汰按 seq 升序进行。
type entryRecord struct {
	Seq        uint64    `gorm:"column:seq;primaryKey;autoIncrement"`
	EntryID    string    `gorm:"column:entry_id;size:64;uniqueIndex;not null"`
	Type       string    `gorm:"column:type;size:32;index;not null"`
	Content    string    `gorm:"column:content;type:text;not null"`
	Summary    string    `gorm:"column:summary;type:text"`
	Metadata   string    `gorm:"column:metadata;type:text"`
	Tags       string    `gorm:"column:tags;type:text"`
	CreatedAt  time.Time `gorm:"column:created_at;not null"`
	AccessedAt time.Time `gorm:"column:accessed_at;not null"`
}

func (entryRecord) TableName() string { return "memory_entries" }

// entryTagRecord memory_entry_tags 表，标签过滤索引
type entryTagRecord struct {
	EntryID string `gorm:"column:entry_id;size:64;primaryKey"`
	Tag     string `gorm:"column:tag;size:128;primaryKey;index"`
}

func (entryTagRecord) TableName() string { return "memory_entry_tags" }

// MigrateSQLStore 为开发环境与测试创建表结构；生产环境使用 migrate 命令
func MigrateSQLStore(db *gorm.DB) error {
	return db.AutoMigrate(&entryRecord{}, &entryTagRecord{})
}

// SQLStore 基于 gorm 的持久化存储（postgres / mysql / sqlite）
type SQLStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewSQLStore 创建 SQL 存储
func NewSQLStore(db *gorm.DB, logger *zap.Logger) *SQLStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLStore{
		db:     db,
		logger: logger.With(zap.String("component", "memory_store_sql")),
	}
}

// Name implements Store.
func (s *SQLStore) Name() string { return "sql" }

// Insert implements Store.
func (s *SQLStore) Insert(ctx context.Context, e *Entry, maxEntries int) ([]string, error) {
	if e == nil || e.ID == "" {
		return nil, fmt.Errorf("entry id is required")
	}
	rec, err := toRecord(e)
	if err != nil {
		return nil, err
	}

	var evicted []string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deleteEntries(tx, []string{e.ID}); err != nil {
			return err
		}
		if err := tx.Create(rec).Error; err != nil {
			return fmt.Errorf("failed to create entry: %w", err)
		}
		if len(e.Tags) > 0 {
			tags := make([]entryTagRecord, 0, len(e.Tags))
			for _, tag := range e.Tags {
				tags = append(tags, entryTagRecord{EntryID: e.ID, Tag: tag})
			}
			if err := tx.Create(&tags).Error; err != nil {
				return fmt.Errorf("failed to create entry tags: %w", err)
			}
		}

		if maxEntries <= 0 {
			return nil
		}
		var total int64
		if err := tx.Model(&entryRecord{}).Count(&total).Error; err != nil {
			return fmt.Errorf("failed to count entries: %w", err)
		}
		if total <= int64(maxEntries) {
			return nil
		}
		if err := tx.Model(&entryRecord{}).
			Order("seq ASC").
			Limit(int(total-int64(maxEntries))).
			Pluck("entry_id", &evicted).Error; err != nil {
			return fmt.Errorf("failed to select eviction victims: %w", err)
		}
		return deleteEntries(tx, evicted)
	})
	if err != nil {
		return nil, err
	}
	if len(evicted) > 0 {
		s.logger.Debug("evicted oldest entries", zap.Int("count", len(evicted)))
	}
	return evicted, nil
}

// Get implements Store.
func (s *SQLStore) Get(ctx context.Context, id string) (*Entry, error) {
	var rec entryRecord
	err := s.db.WithContext(ctx).Where("entry_id = ?", id).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	return fromRecord(&rec)
}

// Candidates implements Store.
func (s *SQLStore) Candidates(ctx context.Context, typ EntryType, tags []string) ([]*Entry, error) {
	q := s.db.WithContext(ctx).Model(&entryRecord{}).Order("seq ASC")
	if typ != "" {
		q = q.Where("type = ?", string(typ))
	}
	if len(tags) > 0 {
		sub := s.db.Model(&entryTagRecord{}).Select("entry_id").Where("tag IN ?", tags)
		q = q.Where("entry_id IN (?)", sub)
	}

	var recs []entryRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to load entries: %w", err)
	}
	out := make([]*Entry, 0, len(recs))
	for i := range recs {
		e, err := fromRecord(&recs[i])
		if err != nil {
			s.logger.Warn("skipping corrupt entry", zap.String("entry_id", recs[i].EntryID), zap.Error(err))
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Touch implements Store.
func (s *SQLStore) Touch(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Model(&entryRecord{}).
		Where("entry_id IN ?", ids).
		Update("accessed_at", at).Error
	if err != nil {
		return fmt.Errorf("failed to touch entries: %w", err)
	}
	return nil
}

// Delete implements Store.
func (s *SQLStore) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("entry_id = ?", id).Delete(&entryRecord{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete entry: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Where("entry_id = ?", id).Delete(&entryTagRecord{}).Error
	})
}

// Count implements Store.
func (s *SQLStore) Count(ctx context.Context) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&entryRecord{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return int(n), nil
}

func deleteEntries(tx *gorm.DB, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := tx.Where("entry_id IN ?", ids).Delete(&entryTagRecord{}).Error; err != nil {
		return fmt.Errorf("failed to delete entry tags: %w", err)
	}
	if err := tx.Where("entry_id IN ?", ids).Delete(&entryRecord{}).Error; err != nil {
		return fmt.Errorf("failed to delete entries: %w", err)
	}
	return nil
}

func toRecord(e *Entry) (*entryRecord, error) {
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	tags, err := json.Marshal(e.Tags)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tags: %w", err)
	}
	return &entryRecord{
		EntryID:    e.ID,
		Type:       string(e.Type),
		Content:    e.Content,
		Summary:    e.Summary,
		Metadata:   string(meta),
		Tags:       string(tags),
		CreatedAt:  e.CreatedAt,
		AccessedAt: e.AccessedAt,
	}, nil
}

func fromRecord(r *entryRecord) (*Entry, error) {
	e := &Entry{
		ID:         r.EntryID,
		Type:       EntryType(r.Type),
		Content:    r.Content,
		Summary:    r.Summary,
		CreatedAt:  r.CreatedAt,
		AccessedAt: r.AccessedAt,
	}
	if r.Metadata != "" && r.Metadata != "null" {
		if err := json.Unmarshal([]byte(r.Metadata), &e.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	if r.Tags != "" && r.Tags != "null" {
		if err := json.Unmarshal([]byte(r.Tags), &e.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
	}
	return e, nil
}
