package cache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestManager(t *testing.T, opts ...Option) (*miniredis.Miniredis, *Manager) {
	t.Helper()
	mr := miniredis.RunT(t)
	m, err := NewManager(Config{Addr: mr.Addr()}, zap.NewNop(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return mr, m
}

func TestNewManager_Unreachable(t *testing.T) {
	m, err := NewManager(Config{Addr: "127.0.0.1:1"}, nil)
	assert.Nil(t, m)
	assert.Error(t, err)
}

func TestManager_ClientSharesConnection(t *testing.T) {
	mr, m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Client().Set(ctx, "agentrelay:memory:e1", "x", 0).Err())
	assert.True(t, mr.Exists("agentrelay:memory:e1"))
	assert.NotNil(t, m.PoolStats())
}

func TestManager_ReportCallsPoolHook(t *testing.T) {
	var calls atomic.Int32
	_, m := newTestManager(t, WithPoolHook(func(total, idle int) {
		calls.Add(1)
		assert.GreaterOrEqual(t, total, idle)
	}))

	m.report(context.Background())
	assert.Equal(t, int32(1), calls.Load())
}

func TestManager_ReportSkipsHookWhenDown(t *testing.T) {
	var calls atomic.Int32
	mr, m := newTestManager(t, WithPoolHook(func(int, int) { calls.Add(1) }))

	mr.Close()
	m.report(context.Background())
	assert.Zero(t, calls.Load())
}

func TestManager_Closed(t *testing.T) {
	_, m := newTestManager(t)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	assert.ErrorIs(t, m.Ping(context.Background()), ErrClosed)
}

func TestManager_MonitorStopsOnClose(t *testing.T) {
	mr := miniredis.RunT(t)
	var calls atomic.Int32
	m, err := NewManager(Config{Addr: mr.Addr(), Monitor: 5 * time.Millisecond}, zap.NewNop(),
		WithPoolHook(func(int, int) { calls.Add(1) }))
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return calls.Load() > 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, m.Close())

	after := calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, calls.Load())
}
