// Package factory 按名称创建推理 Oracle，打破 llm 包与各 provider 子包之间的循环依赖。
package factory

import (
	"fmt"
	"strings"

	"github.com/BaSui01/agentrelay/llm"
	"github.com/BaSui01/agentrelay/llm/providers"
	claude "github.com/BaSui01/agentrelay/llm/providers/anthropic"
	"github.com/BaSui01/agentrelay/llm/providers/gemini"
	"github.com/BaSui01/agentrelay/llm/providers/openai"
	"go.uber.org/zap"
)

// NewReasoner 根据 provider 名称创建 Reasoner。
//
// 支持的名称: openai, azure, anthropic, claude, gemini, none。
// "none"、空名称或缺少 API Key 时返回 (nil, nil)，调用方走确定性回退路径。
func NewReasoner(name string, cfg providers.Config, logger *zap.Logger) (llm.Reasoner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == "none" {
		return nil, nil
	}
	if cfg.APIKey == "" {
		logger.Warn("oracle api key missing, running without oracle", zap.String("provider", name))
		return nil, nil
	}

	switch name {
	case "openai":
		return openai.New(cfg, logger), nil
	case "azure":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("azure provider requires base_url")
		}
		return openai.NewAzure(cfg, logger), nil
	case "anthropic", "claude":
		return claude.New(cfg, logger), nil
	case "gemini":
		return gemini.New(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown oracle provider: %s", name)
	}
}

// SupportedProviders 返回所有支持的 provider 名称
func SupportedProviders() []string {
	return []string{"openai", "azure", "anthropic", "claude", "gemini", "none"}
}
