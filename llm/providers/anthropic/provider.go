package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/BaSui01/agentrelay/llm/providers"
	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

const defaultModel = "claude-sonnet-4-20250514"

// Provider Claude Messages Oracle
type Provider struct {
	client *sdk.Client
	cfg    providers.Config
	logger *zap.Logger
}

// New 创建 Claude Provider
func New(cfg providers.Config, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.WithDefaults(defaultModel)
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
	client := sdk.NewClient(opts...)
	return &Provider{
		client: &client,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "oracle"), zap.String("provider", "anthropic")),
	}
}

// Name 实现 llm.Reasoner
func (p *Provider) Name() string { return "anthropic" }

// Available 实现 llm.Reasoner
func (p *Provider) Available() bool { return p.cfg.APIKey != "" }

// Complete 实现 llm.Reasoner
func (p *Provider) Complete(ctx context.Context, prompt string, expectJSON bool) (string, error) {
	params := sdk.MessageNewParams{
		Model:       sdk.Model(p.cfg.Model),
		MaxTokens:   int64(p.cfg.MaxTokens),
		Temperature: sdk.Float(p.cfg.Temperature),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	}
	if expectJSON {
		params.System = []sdk.TextBlockParam{{Text: providers.JSONInstruction}}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic api error: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("no text content returned")
	}

	p.logger.Debug("oracle completion",
		zap.String("model", string(msg.Model)),
		zap.Int64("output_tokens", msg.Usage.OutputTokens),
	)
	return sb.String(), nil
}
