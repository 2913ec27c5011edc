package memory

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newSQLStore(t *testing.T) (*SQLStore, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 内存库按连接隔离
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, MigrateSQLStore(db))
	return NewSQLStore(db, nil), db
}

func TestSQLStore_Contract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		s, _ := newSQLStore(t)
		return s
	})
}

func TestSQLStore_EvictionRemovesTagRows(t *testing.T) {
	s, db := newSQLStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, newEntry("old", TypeFact, "x", "a", "b"), 1)
	require.NoError(t, err)
	_, err = s.Insert(ctx, newEntry("new", TypeFact, "y", "c"), 1)
	require.NoError(t, err)

	var tags []entryTagRecord
	require.NoError(t, db.Order("tag").Find(&tags).Error)
	assert.Equal(t, []entryTagRecord{{EntryID: "new", Tag: "c"}}, tags)
}

func TestSQLStore_ReinsertReplaces(t *testing.T) {
	s, _ := newSQLStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, newEntry("a", TypeFact, "first", "t1"), 0)
	require.NoError(t, err)
	_, err = s.Insert(ctx, newEntry("a", TypeFact, "second", "t2"), 0)
	require.NoError(t, err)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "second", got.Content)

	old, err := s.Candidates(ctx, "", []string{"t1"})
	require.NoError(t, err)
	assert.Empty(t, old)
}
