package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// InMemoryStore 进程内存储，默认后端。
// 条目、类型索引、标签索引与插入顺序在同一把锁下更新。
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	order   []string
	byType  map[EntryType]map[string]struct{}
	byTag   map[string]map[string]struct{}

	logger *zap.Logger
}

// NewInMemoryStore 创建内存存储
func NewInMemoryStore(logger *zap.Logger) *InMemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryStore{
		entries: make(map[string]*Entry),
		byType:  make(map[EntryType]map[string]struct{}),
		byTag:   make(map[string]map[string]struct{}),
		logger:  logger.With(zap.String("component", "memory_store_inmemory")),
	}
}

// Name implements Store.
func (s *InMemoryStore) Name() string { return "memory" }

// Insert implements Store.
func (s *InMemoryStore) Insert(ctx context.Context, e *Entry, maxEntries int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e == nil || e.ID == "" {
		return nil, fmt.Errorf("entry id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[e.ID]; exists {
		s.removeLocked(e.ID)
	}
	cp := e.clone()
	s.entries[cp.ID] = cp
	s.order = append(s.order, cp.ID)
	addIndex(s.byType, cp.Type, cp.ID)
	for _, tag := range cp.Tags {
		addIndex(s.byTag, tag, cp.ID)
	}

	return s.evictLocked(maxEntries), nil
}

// Get implements Store.
func (s *InMemoryStore) Get(ctx context.Context, id string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e.clone(), nil
}

// Candidates implements Store.
func (s *InMemoryStore) Candidates(ctx context.Context, typ EntryType, tags []string) ([]*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var typeSet map[string]struct{}
	if typ != "" {
		typeSet = s.byType[typ]
		if len(typeSet) == 0 {
			return nil, nil
		}
	}
	var tagSet map[string]struct{}
	if len(tags) > 0 {
		tagSet = make(map[string]struct{})
		for _, tag := range tags {
			for id := range s.byTag[tag] {
				tagSet[id] = struct{}{}
			}
		}
	}

	out := make([]*Entry, 0, len(s.order))
	for _, id := range s.order {
		if typeSet != nil {
			if _, ok := typeSet[id]; !ok {
				continue
			}
		}
		if tagSet != nil {
			if _, ok := tagSet[id]; !ok {
				continue
			}
		}
		out = append(out, s.entries[id].clone())
	}
	return out, nil
}

// Touch implements Store.
func (s *InMemoryStore) Touch(ctx context.Context, ids []string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if e, ok := s.entries[id]; ok {
			e.AccessedAt = at
		}
	}
	return nil
}

// Delete implements Store.
func (s *InMemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return ErrNotFound
	}
	s.removeLocked(id)
	return nil
}

// Count implements Store.
func (s *InMemoryStore) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// evictLocked 按插入顺序淘汰最旧条目
func (s *InMemoryStore) evictLocked(maxEntries int) []string {
	if maxEntries <= 0 || len(s.entries) <= maxEntries {
		return nil
	}
	n := len(s.entries) - maxEntries
	evicted := append([]string(nil), s.order[:n]...)
	for _, id := range evicted {
		s.removeLocked(id)
	}
	s.logger.Debug("evicted oldest entries", zap.Int("count", n))
	return evicted
}

func (s *InMemoryStore) removeLocked(id string) {
	e, ok := s.entries[id]
	if !ok {
		return
	}
	delete(s.entries, id)
	removeIndex(s.byType, e.Type, id)
	for _, tag := range e.Tags {
		removeIndex(s.byTag, tag, id)
	}
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func addIndex[K comparable](idx map[K]map[string]struct{}, key K, id string) {
	set, ok := idx[key]
	if !ok {
		set = make(map[string]struct{})
		idx[key] = set
	}
	set[id] = struct{}{}
}

func removeIndex[K comparable](idx map[K]map[string]struct{}, key K, id string) {
	set, ok := idx[key]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(idx, key)
	}
}
