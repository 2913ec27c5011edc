package llm

import (
	"context"
	"errors"

	"github.com/BaSui01/agentrelay/types"
)

// ErrUnavailable 表示没有可用的 Oracle，调用方应走确定性回退。
var ErrUnavailable = errors.New("reasoning oracle unavailable")

// Reasoner 推理 Oracle：给定自然语言 prompt，返回文本（expectJSON 时为 JSON 对象）。
type Reasoner interface {
	// Complete 发送 prompt 并返回模型输出
	Complete(ctx context.Context, prompt string, expectJSON bool) (string, error)

	// Available 报告当前是否可以调用
	Available() bool

	// Name 返回 provider 名称
	Name() string
}

// IsAvailable 对 nil 安全的可用性检查
func IsAvailable(r Reasoner) bool {
	return r != nil && r.Available()
}

// Complete 对 nil 安全的调用，Oracle 缺失时返回 ErrUnavailable
func Complete(ctx context.Context, r Reasoner, prompt string, expectJSON bool) (string, error) {
	if !IsAvailable(r) {
		return "", ErrUnavailable
	}
	return r.Complete(ctx, prompt, expectJSON)
}

// CompleteJSON 请求结构化输出并解码到 T。
// 任何失败都以 ORACLE_* 错误码返回，便于调用方统一降级。
func CompleteJSON[T any](ctx context.Context, r Reasoner, prompt string) (T, error) {
	var zero T
	raw, err := Complete(ctx, r, prompt, true)
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			return zero, types.NewError(types.ErrOracleUnavailable, "oracle unavailable").WithCause(err)
		}
		return zero, types.NewError(types.ErrOracleUnavailable, "oracle call failed").WithCause(err)
	}
	var out T
	if err := DecodeJSON(raw, &out); err != nil {
		return zero, types.NewError(types.ErrOracleInvalidResponse, "malformed oracle output").WithCause(err)
	}
	return out, nil
}
