package providers

import "time"

// JSONInstruction 追加在 expectJSON 请求的系统提示中
const JSONInstruction = "Respond with a single valid JSON object and nothing else."

// Config 所有 Provider 共享的配置字段
type Config struct {
	APIKey      string        `json:"api_key" yaml:"api_key"`
	BaseURL     string        `json:"base_url" yaml:"base_url"`
	Model       string        `json:"model,omitempty" yaml:"model,omitempty"`
	Temperature float64       `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// APIVersion 仅 Azure OpenAI 使用
	APIVersion string `json:"api_version,omitempty" yaml:"api_version,omitempty"`
}

// WithDefaults 填充未设置的公共字段
func (c Config) WithDefaults(model string) Config {
	if c.Model == "" {
		c.Model = model
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 4096
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	return c
}
