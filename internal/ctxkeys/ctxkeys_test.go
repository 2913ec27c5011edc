package ctxkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringKeys(t *testing.T) {
	ctx := context.Background()

	_, ok := WorkflowID(ctx)
	assert.False(t, ok)

	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithWorkflowID(ctx, "wf-1")
	ctx = WithContextID(ctx, "ctx-1")

	v, ok := TraceID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "trace-1", v)

	v, _ = RequestID(ctx)
	assert.Equal(t, "req-1", v)
	v, _ = WorkflowID(ctx)
	assert.Equal(t, "wf-1", v)
	v, _ = ContextID(ctx)
	assert.Equal(t, "ctx-1", v)
}

func TestEmptyStringIsUnset(t *testing.T) {
	ctx := WithWorkflowID(context.Background(), "")
	_, ok := WorkflowID(ctx)
	assert.False(t, ok)
}

func TestStepIndex(t *testing.T) {
	_, ok := StepIndex(context.Background())
	assert.False(t, ok)

	// 第 0 步也算已设置
	idx, ok := StepIndex(WithStepIndex(context.Background(), 0))
	assert.True(t, ok)
	assert.Equal(t, 0, idx)
}

func TestFields(t *testing.T) {
	assert.Empty(t, Fields(context.Background()))

	ctx := WithWorkflowID(context.Background(), "wf-1")
	ctx = WithStepIndex(ctx, 2)

	fields := Fields(ctx)
	keys := make([]string, 0, len(fields))
	for _, f := range fields {
		keys = append(keys, f.Key)
	}
	assert.Equal(t, []string{"workflow_id", "step"}, keys)
}
