package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/BaSui01/agentrelay/llm/providers"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"go.uber.org/zap"
)

// Provider OpenAI Chat Completions Oracle
type Provider struct {
	client *openai.Client
	cfg    providers.Config
	name   string
	logger *zap.Logger
}

// New 创建 OpenAI Provider
func New(cfg providers.Config, logger *zap.Logger) *Provider {
	cfg = cfg.WithDefaults(openai.ChatModelGPT4o)
	opts := []option.RequestOption{
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.Timeout),
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return newProvider("openai", cfg, opts, logger)
}

// NewAzure 创建 Azure OpenAI Provider；Model 为部署名
func NewAzure(cfg providers.Config, logger *zap.Logger) *Provider {
	cfg = cfg.WithDefaults(openai.ChatModelGPT4o)
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2024-10-21"
	}
	opts := []option.RequestOption{
		azure.WithEndpoint(cfg.BaseURL, cfg.APIVersion),
		azure.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.Timeout),
	}
	return newProvider("azure", cfg, opts, logger)
}

func newProvider(name string, cfg providers.Config, opts []option.RequestOption, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := openai.NewClient(opts...)
	return &Provider{
		client: &client,
		cfg:    cfg,
		name:   name,
		logger: logger.With(zap.String("component", "oracle"), zap.String("provider", name)),
	}
}

// Name 实现 llm.Reasoner
func (p *Provider) Name() string { return p.name }

// Available 实现 llm.Reasoner
func (p *Provider) Available() bool { return p.cfg.APIKey != "" }

// Complete 实现 llm.Reasoner
func (p *Provider) Complete(ctx context.Context, prompt string, expectJSON bool) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:               p.cfg.Model,
		MaxCompletionTokens: openai.Int(int64(p.cfg.MaxTokens)),
	}
	if supportsTemperature(p.cfg.Model) {
		params.Temperature = openai.Float(p.cfg.Temperature)
	}
	if expectJSON {
		params.Messages = append(params.Messages, openai.SystemMessage(providers.JSONInstruction))
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	params.Messages = append(params.Messages, openai.UserMessage(prompt))

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%s api error: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices returned")
	}

	p.logger.Debug("oracle completion",
		zap.String("model", resp.Model),
		zap.Int64("total_tokens", resp.Usage.TotalTokens),
	)
	return resp.Choices[0].Message.Content, nil
}

// gpt-5 与 o 系列推理模型不接受 temperature
func supportsTemperature(model string) bool {
	for _, prefix := range []string{"gpt-5", "o1", "o3", "o4"} {
		if len(model) >= len(prefix) && model[:len(prefix)] == prefix {
			return false
		}
	}
	return true
}
