// MockReasoner 是 Reasoning Oracle 的测试模拟实现。
//
// 支持按顺序返回脚本响应、按提示词匹配响应、错误注入与不可用模拟。
package mocks

import (
	"context"
	"strings"
	"sync"

	"github.com/BaSui01/agentrelay/llm"
)

// MockReasonerCall 记录单次调用
type MockReasonerCall struct {
	Prompt     string
	ExpectJSON bool
	Response   string
	Error      error
}

// MockReasoner 是 llm.Reasoner 的模拟实现
type MockReasoner struct {
	mu sync.Mutex

	name        string
	unavailable bool
	responses   []string
	fallback    string
	rules       []matchRule
	err         error
	failAfter   int
	completeFn  func(ctx context.Context, prompt string, expectJSON bool) (string, error)

	calls []MockReasonerCall
}

type matchRule struct {
	substr   string
	response string
}

// --- 构造函数和 Builder 方法 ---

// NewMockReasoner 创建新的 MockReasoner
func NewMockReasoner() *MockReasoner {
	return &MockReasoner{name: "mock", failAfter: -1}
}

// WithName 设置名称
func (m *MockReasoner) WithName(name string) *MockReasoner {
	m.name = name
	return m
}

// WithResponses 按调用顺序返回响应，用完后重复最后一个
func (m *MockReasoner) WithResponses(responses ...string) *MockReasoner {
	m.responses = append(m.responses, responses...)
	return m
}

// WithDefault 没有脚本响应或匹配规则时返回的内容
func (m *MockReasoner) WithDefault(response string) *MockReasoner {
	m.fallback = response
	return m
}

// WhenPromptContains 提示词包含 substr 时返回 response，优先于顺序响应
func (m *MockReasoner) WhenPromptContains(substr, response string) *MockReasoner {
	m.rules = append(m.rules, matchRule{substr: substr, response: response})
	return m
}

// WithError 所有调用返回错误
func (m *MockReasoner) WithError(err error) *MockReasoner {
	m.err = err
	return m
}

// WithFailAfter 在第 n 次调用之后开始返回错误
func (m *MockReasoner) WithFailAfter(n int, err error) *MockReasoner {
	m.failAfter = n
	m.err = err
	return m
}

// WithCompleteFunc 使用自定义函数处理调用
func (m *MockReasoner) WithCompleteFunc(fn func(ctx context.Context, prompt string, expectJSON bool) (string, error)) *MockReasoner {
	m.completeFn = fn
	return m
}

// Unavailable 模拟未配置的 Oracle
func (m *MockReasoner) Unavailable() *MockReasoner {
	m.unavailable = true
	return m
}

// --- llm.Reasoner 实现 ---

// Name 实现 llm.Reasoner
func (m *MockReasoner) Name() string { return m.name }

// Available 实现 llm.Reasoner
func (m *MockReasoner) Available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.unavailable
}

// Complete 实现 llm.Reasoner
func (m *MockReasoner) Complete(ctx context.Context, prompt string, expectJSON bool) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	resp, err := m.respond(ctx, prompt, expectJSON)
	m.calls = append(m.calls, MockReasonerCall{
		Prompt:     prompt,
		ExpectJSON: expectJSON,
		Response:   resp,
		Error:      err,
	})
	return resp, err
}

func (m *MockReasoner) respond(ctx context.Context, prompt string, expectJSON bool) (string, error) {
	if m.unavailable {
		return "", llm.ErrUnavailable
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.err != nil && (m.failAfter < 0 || len(m.calls) >= m.failAfter) {
		return "", m.err
	}
	if m.completeFn != nil {
		return m.completeFn(ctx, prompt, expectJSON)
	}
	for _, r := range m.rules {
		if strings.Contains(prompt, r.substr) {
			return r.response, nil
		}
	}
	if n := len(m.responses); n > 0 {
		idx := len(m.calls)
		if idx >= n {
			idx = n - 1
		}
		return m.responses[idx], nil
	}
	return m.fallback, nil
}

// --- 调用记录 ---

// Calls 返回全部调用记录
func (m *MockReasoner) Calls() []MockReasonerCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockReasonerCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount 返回调用次数
func (m *MockReasoner) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// LastPrompt 返回最后一次调用的提示词
func (m *MockReasoner) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return ""
	}
	return m.calls[len(m.calls)-1].Prompt
}

// Reset 清空调用记录
func (m *MockReasoner) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

var _ llm.Reasoner = (*MockReasoner)(nil)
