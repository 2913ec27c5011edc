// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 编排测试共用的上下文、退避与错误码断言
//
// 使用方法:
//
//	ctx := testutil.TestContext(t)
//	rec := &testutil.SleepRecorder{}
//	e := workflow.NewExecutor(dir, inv, cfg, logger, workflow.WithSleep(rec.Sleep))
// =============================================================================
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/agentrelay/types"
)

// TestContext 返回 30 秒超时的测试上下文，测试结束时取消
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// NoSleep 是不等待的退避函数，供 Executor 测试使用
func NoSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

// SleepRecorder 记录每次退避请求的时长而不真正等待
type SleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

// Sleep 签名与 workflow.WithSleep 一致
func (r *SleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	return ctx.Err()
}

// Waits 返回已记录的退避时长副本
func (r *SleepRecorder) Waits() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.waits...)
}

// AssertErrorCode 断言错误携带指定的错误码
func AssertErrorCode(t *testing.T, err error, code types.ErrorCode) {
	t.Helper()

	if err == nil {
		t.Fatalf("expected error with code %s, got nil", code)
	}
	if got := types.GetErrorCode(err); got != code {
		t.Errorf("error code mismatch: expected %s, got %s (%v)", code, got, err)
	}
}
