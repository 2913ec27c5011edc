package gemini

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/BaSui01/agentrelay/llm/providers"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

const defaultModel = "gemini-2.5-flash"

// Provider Gemini Oracle；客户端在首次调用时创建
type Provider struct {
	cfg    providers.Config
	logger *zap.Logger

	once    sync.Once
	client  *genai.Client
	initErr error
}

// New 创建 Gemini Provider
func New(cfg providers.Config, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		cfg:    cfg.WithDefaults(defaultModel),
		logger: logger.With(zap.String("component", "oracle"), zap.String("provider", "gemini")),
	}
}

// Name 实现 llm.Reasoner
func (p *Provider) Name() string { return "gemini" }

// Available 实现 llm.Reasoner
func (p *Provider) Available() bool { return p.cfg.APIKey != "" }

func (p *Provider) getClient(ctx context.Context) (*genai.Client, error) {
	p.once.Do(func() {
		cc := &genai.ClientConfig{
			APIKey:  p.cfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		}
		if p.cfg.BaseURL != "" {
			cc.HTTPOptions.BaseURL = p.cfg.BaseURL
		}
		p.client, p.initErr = genai.NewClient(ctx, cc)
	})
	return p.client, p.initErr
}

// Complete 实现 llm.Reasoner
func (p *Provider) Complete(ctx context.Context, prompt string, expectJSON bool) (string, error) {
	client, err := p.getClient(ctx)
	if err != nil {
		return "", fmt.Errorf("gemini client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	gc := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(p.cfg.Temperature)),
		MaxOutputTokens: int32(p.cfg.MaxTokens),
	}
	if expectJSON {
		gc.ResponseMIMEType = "application/json"
	}

	resp, err := client.Models.GenerateContent(ctx, p.cfg.Model, genai.Text(prompt), gc)
	if err != nil {
		return "", fmt.Errorf("gemini api error: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", errors.New("no text content returned")
	}
	if resp.UsageMetadata != nil {
		p.logger.Debug("oracle completion",
			zap.String("model", p.cfg.Model),
			zap.Int32("total_tokens", resp.UsageMetadata.TotalTokenCount),
		)
	}
	return text, nil
}
