package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultRedisPrefix Redis 键前缀
const DefaultRedisPrefix = "agentrelay:memory:"

const maxTxRetries = 10

// RedisStore 基于 Redis 的共享存储。
// 每条记忆一个 JSON 字符串键；全局、类型、标签各一个以插入序号为分数的 ZSET 索引。
// 写入与淘汰在 WATCH + MULTI 事务中完成。
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	logger *zap.Logger
}

// NewRedisStore 创建 Redis 存储
func NewRedisStore(client redis.UniversalClient, prefix string, logger *zap.Logger) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		logger: logger.With(zap.String("component", "memory_store_redis")),
	}
}

// Name implements Store.
func (s *RedisStore) Name() string { return "redis" }

func (s *RedisStore) entryKey(id string) string { return s.prefix + "entry:" + id }
func (s *RedisStore) allKey() string            { return s.prefix + "all" }
func (s *RedisStore) seqKey() string            { return s.prefix + "seq" }
func (s *RedisStore) typeKey(t EntryType) string {
	return s.prefix + "type:" + string(t)
}
func (s *RedisStore) tagKey(tag string) string { return s.prefix + "tag:" + tag }

// Insert implements Store.
func (s *RedisStore) Insert(ctx context.Context, e *Entry, maxEntries int) ([]string, error) {
	if e == nil || e.ID == "" {
		return nil, fmt.Errorf("entry id is required")
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entry: %w", err)
	}
	seq, err := s.client.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate sequence: %w", err)
	}
	score := float64(seq)

	var evicted []string
	txf := func(tx *redis.Tx) error {
		evicted = evicted[:0]
		total, err := tx.ZCard(ctx, s.allKey()).Result()
		if err != nil {
			return err
		}
		total++

		var victims []*Entry
		if maxEntries > 0 && total > int64(maxEntries) {
			ids, err := tx.ZRange(ctx, s.allKey(), 0, total-int64(maxEntries)-1).Result()
			if err != nil {
				return err
			}
			for _, id := range ids {
				v, err := s.load(ctx, tx, id)
				if err != nil && !errors.Is(err, ErrNotFound) {
					return err
				}
				if v == nil {
					v = &Entry{ID: id}
				}
				victims = append(victims, v)
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.entryKey(e.ID), data, 0)
			pipe.ZAdd(ctx, s.allKey(), redis.Z{Score: score, Member: e.ID})
			pipe.ZAdd(ctx, s.typeKey(e.Type), redis.Z{Score: score, Member: e.ID})
			for _, tag := range e.Tags {
				pipe.ZAdd(ctx, s.tagKey(tag), redis.Z{Score: score, Member: e.ID})
			}
			for _, v := range victims {
				s.removeInPipe(ctx, pipe, v)
				evicted = append(evicted, v.ID)
			}
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err = s.client.Watch(ctx, txf, s.allKey())
		if err == nil {
			if len(evicted) > 0 {
				s.logger.Debug("evicted oldest entries", zap.Int("count", len(evicted)))
			}
			return evicted, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return nil, fmt.Errorf("failed to insert entry: %w", err)
		}
	}
	return nil, fmt.Errorf("failed to insert entry: %w", err)
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, id string) (*Entry, error) {
	return s.load(ctx, s.client, id)
}

// Candidates implements Store.
func (s *RedisStore) Candidates(ctx context.Context, typ EntryType, tags []string) ([]*Entry, error) {
	var ids []string
	switch {
	case len(tags) > 0:
		scores := make(map[string]float64)
		for _, tag := range tags {
			zs, err := s.client.ZRangeWithScores(ctx, s.tagKey(tag), 0, -1).Result()
			if err != nil {
				return nil, fmt.Errorf("failed to read tag index: %w", err)
			}
			for _, z := range zs {
				scores[z.Member.(string)] = z.Score
			}
		}
		if typ != "" {
			for id := range scores {
				if _, err := s.client.ZScore(ctx, s.typeKey(typ), id).Result(); err != nil {
					if errors.Is(err, redis.Nil) {
						delete(scores, id)
						continue
					}
					return nil, fmt.Errorf("failed to read type index: %w", err)
				}
			}
		}
		ids = sortedByScore(scores)
	case typ != "":
		var err error
		if ids, err = s.client.ZRange(ctx, s.typeKey(typ), 0, -1).Result(); err != nil {
			return nil, fmt.Errorf("failed to read type index: %w", err)
		}
	default:
		var err error
		if ids, err = s.client.ZRange(ctx, s.allKey(), 0, -1).Result(); err != nil {
			return nil, fmt.Errorf("failed to read index: %w", err)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.entryKey(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load entries: %w", err)
	}
	out := make([]*Entry, 0, len(vals))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(str), &e); err != nil {
			s.logger.Warn("skipping corrupt entry", zap.String("entry_id", ids[i]), zap.Error(err))
			continue
		}
		out = append(out, &e)
	}
	return out, nil
}

// Touch implements Store.
func (s *RedisStore) Touch(ctx context.Context, ids []string, at time.Time) error {
	for _, id := range ids {
		e, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		e.AccessedAt = at
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal entry: %w", err)
		}
		// XX: 条目在读写之间被淘汰时不复活
		if err := s.client.SetXX(ctx, s.entryKey(id), data, 0).Err(); err != nil {
			return fmt.Errorf("failed to touch entry: %w", err)
		}
	}
	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	e, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.removeInPipe(ctx, pipe, e)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	return nil
}

// Count implements Store.
func (s *RedisStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.ZCard(ctx, s.allKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return int(n), nil
}

func (s *RedisStore) removeInPipe(ctx context.Context, pipe redis.Pipeliner, e *Entry) {
	pipe.Del(ctx, s.entryKey(e.ID))
	pipe.ZRem(ctx, s.allKey(), e.ID)
	if e.Type != "" {
		pipe.ZRem(ctx, s.typeKey(e.Type), e.ID)
	}
	for _, tag := range e.Tags {
		pipe.ZRem(ctx, s.tagKey(tag), e.ID)
	}
}

func (s *RedisStore) load(ctx context.Context, c getter, id string) (*Entry, error) {
	data, err := c.Get(ctx, s.entryKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
	}
	return &e, nil
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// sortedByScore 按插入序号升序
func sortedByScore(scores map[string]float64) []string {
	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return scores[ids[i]] < scores[ids[j]] })
	return ids
}
