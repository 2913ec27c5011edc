package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newEntry(id string, typ EntryType, content string, tags ...string) *Entry {
	return &Entry{
		ID:         id,
		Type:       typ,
		Content:    content,
		Tags:       tags,
		Metadata:   map[string]any{"source": "test"},
		CreatedAt:  baseTime,
		AccessedAt: baseTime,
	}
}

func entryIDs(entries []*Entry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}

// runStoreContract 所有后端共享的行为约束
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("insert and get", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		evicted, err := s.Insert(ctx, newEntry("a", TypeFact, "kubernetes runs pods", "k8s"), 10)
		require.NoError(t, err)
		assert.Empty(t, evicted)

		got, err := s.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "kubernetes runs pods", got.Content)
		assert.Equal(t, TypeFact, got.Type)
		assert.Equal(t, []string{"k8s"}, got.Tags)
		assert.Equal(t, "test", got.Metadata["source"])

		_, err = s.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("candidates keep insertion order and filter", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for _, e := range []*Entry{
			newEntry("1", TypeConversation, "hello", "chat"),
			newEntry("2", TypeWorkflow, "wf one", "workflow", "search"),
			newEntry("3", TypeWorkflow, "wf two", "workflow", "docs"),
			newEntry("4", TypeFact, "fact", "docs"),
		} {
			_, err := s.Insert(ctx, e, 0)
			require.NoError(t, err)
		}

		all, err := s.Candidates(ctx, "", nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"1", "2", "3", "4"}, entryIDs(all))

		wfs, err := s.Candidates(ctx, TypeWorkflow, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"2", "3"}, entryIDs(wfs))

		tagged, err := s.Candidates(ctx, "", []string{"docs", "search"})
		require.NoError(t, err)
		assert.Equal(t, []string{"2", "3", "4"}, entryIDs(tagged), "any tag matches")

		both, err := s.Candidates(ctx, TypeWorkflow, []string{"docs"})
		require.NoError(t, err)
		assert.Equal(t, []string{"3"}, entryIDs(both))

		none, err := s.Candidates(ctx, TypeArtifact, nil)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("evicts oldest with indices", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for i := 0; i < 3; i++ {
			_, err := s.Insert(ctx, newEntry(fmt.Sprintf("e%d", i), TypeFact, "x", "shared"), 3)
			require.NoError(t, err)
		}
		evicted, err := s.Insert(ctx, newEntry("e3", TypeFact, "x", "shared"), 3)
		require.NoError(t, err)
		assert.Equal(t, []string{"e0"}, evicted)

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		_, err = s.Get(ctx, "e0")
		assert.ErrorIs(t, err, ErrNotFound)

		tagged, err := s.Candidates(ctx, TypeFact, []string{"shared"})
		require.NoError(t, err)
		assert.Equal(t, []string{"e1", "e2", "e3"}, entryIDs(tagged))
	})

	t.Run("touch and delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, err := s.Insert(ctx, newEntry("a", TypeFact, "x", "t"), 0)
		require.NoError(t, err)

		later := baseTime.Add(time.Hour)
		require.NoError(t, s.Touch(ctx, []string{"a", "ghost"}, later))
		got, err := s.Get(ctx, "a")
		require.NoError(t, err)
		assert.WithinDuration(t, later, got.AccessedAt, time.Second)

		require.NoError(t, s.Delete(ctx, "a"))
		assert.ErrorIs(t, s.Delete(ctx, "a"), ErrNotFound)

		tagged, err := s.Candidates(ctx, "", []string{"t"})
		require.NoError(t, err)
		assert.Empty(t, tagged)
	})
}

func TestInMemoryStore_Contract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store { return NewInMemoryStore(nil) })
}

// 并发写入与检索下，条目数不超过上限且索引与条目一致。
func TestInMemoryStore_ConcurrentInsertAndRead(t *testing.T) {
	s := NewInMemoryStore(nil)
	ctx := context.Background()
	const maxEntries = 20

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, err := s.Insert(ctx, newEntry(fmt.Sprintf("w%d-%d", w, i), TypeFact, "x", "tag"), maxEntries)
				assert.NoError(t, err)

				list, err := s.Candidates(ctx, TypeFact, []string{"tag"})
				assert.NoError(t, err)
				assert.LessOrEqual(t, len(list), maxEntries)
				for _, e := range list {
					assert.NotNil(t, e)
				}
			}
		}(w)
	}
	wg.Wait()

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, maxEntries, n)

	s.mu.RLock()
	defer s.mu.RUnlock()
	assert.Len(t, s.order, maxEntries)
	assert.Len(t, s.byType[TypeFact], maxEntries)
	assert.Len(t, s.byTag["tag"], maxEntries)
}
