package ctxkeys

import (
	"context"

	"go.uber.org/zap"
)

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	traceIDKey    contextKey = "trace_id"
	requestIDKey  contextKey = "request_id"
	workflowIDKey contextKey = "workflow_id"
	contextIDKey  contextKey = "context_id"
	stepIndexKey  contextKey = "step_index"
)

// WithTraceID 设置 TraceID
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID 获取 TraceID
func TraceID(ctx context.Context) (string, bool) {
	return stringValue(ctx, traceIDKey)
}

// WithRequestID 设置 RequestID
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID 获取 RequestID
func RequestID(ctx context.Context) (string, bool) {
	return stringValue(ctx, requestIDKey)
}

// WithWorkflowID 设置当前工作流 ID
func WithWorkflowID(ctx context.Context, workflowID string) context.Context {
	return context.WithValue(ctx, workflowIDKey, workflowID)
}

// WorkflowID 获取当前工作流 ID
func WorkflowID(ctx context.Context) (string, bool) {
	return stringValue(ctx, workflowIDKey)
}

// WithContextID 设置会话上下文 ID（传给 agent 的 contextId）
func WithContextID(ctx context.Context, contextID string) context.Context {
	return context.WithValue(ctx, contextIDKey, contextID)
}

// ContextID 获取会话上下文 ID
func ContextID(ctx context.Context) (string, bool) {
	return stringValue(ctx, contextIDKey)
}

// WithStepIndex 设置当前步骤序号
func WithStepIndex(ctx context.Context, index int) context.Context {
	return context.WithValue(ctx, stepIndexKey, index)
}

// StepIndex 获取当前步骤序号
func StepIndex(ctx context.Context) (int, bool) {
	v, ok := ctx.Value(stepIndexKey).(int)
	return v, ok
}

// Fields 把 context 中已设置的键转成日志字段
func Fields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if v, ok := TraceID(ctx); ok {
		fields = append(fields, zap.String("trace_id", v))
	}
	if v, ok := RequestID(ctx); ok {
		fields = append(fields, zap.String("request_id", v))
	}
	if v, ok := WorkflowID(ctx); ok {
		fields = append(fields, zap.String("workflow_id", v))
	}
	if v, ok := ContextID(ctx); ok {
		fields = append(fields, zap.String("context_id", v))
	}
	if v, ok := StepIndex(ctx); ok {
		fields = append(fields, zap.Int("step", v))
	}
	return fields
}

func stringValue(ctx context.Context, key contextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
