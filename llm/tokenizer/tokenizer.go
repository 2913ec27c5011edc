package tokenizer

import (
	"strings"
)

// Tokenizer 是统一的 token 计数接口，Oracle 保护层用它把 prompt 控制在预算内。
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数.
	CountTokens(text string) (int, error)

	// Truncate 截断文本使其不超过 maxTokens，返回截断后的文本.
	Truncate(text string, maxTokens int) (string, error)

	// Name 返回分词器的名称.
	Name() string
}

// ForModel 为模型选择分词器：OpenAI 家族使用 tiktoken，其余使用估算器。
// tiktoken 初始化失败（例如编码数据不可用）时自动回退到估算器。
func ForModel(model string) Tokenizer {
	est := NewEstimatorTokenizer()
	if !isOpenAIModel(model) {
		return est
	}
	return &fallbackTokenizer{primary: NewTiktokenTokenizer(model), fallback: est}
}

func isOpenAIModel(model string) bool {
	m := strings.ToLower(model)
	for _, prefix := range []string{"gpt-", "o1", "o3", "o4", "text-embedding-"} {
		if strings.HasPrefix(m, prefix) {
			return true
		}
	}
	return false
}

type fallbackTokenizer struct {
	primary  Tokenizer
	fallback Tokenizer
}

func (f *fallbackTokenizer) CountTokens(text string) (int, error) {
	if n, err := f.primary.CountTokens(text); err == nil {
		return n, nil
	}
	return f.fallback.CountTokens(text)
}

func (f *fallbackTokenizer) Truncate(text string, maxTokens int) (string, error) {
	if out, err := f.primary.Truncate(text, maxTokens); err == nil {
		return out, nil
	}
	return f.fallback.Truncate(text, maxTokens)
}

func (f *fallbackTokenizer) Name() string {
	return f.primary.Name() + "|" + f.fallback.Name()
}
