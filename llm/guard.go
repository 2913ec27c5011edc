package llm

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/agentrelay/internal/circuitbreaker"
	"github.com/BaSui01/agentrelay/llm/cache"
	"github.com/BaSui01/agentrelay/llm/tokenizer"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Call outcomes reported to GuardConfig.OnCall.
const (
	OutcomeSuccess     = "success"
	OutcomeCacheHit    = "cache_hit"
	OutcomeError       = "error"
	OutcomeUnavailable = "unavailable"
)

// GuardConfig Oracle 保护层配置
type GuardConfig struct {
	// RateLimit 每秒请求数，<= 0 表示不限流
	RateLimit float64
	Burst     int

	// Breaker 熔断配置；打开期间 Guard 报告不可用，调用点直接走回退
	Breaker *circuitbreaker.Config

	// Cache 结构化响应缓存，nil 表示不缓存
	Cache    cache.ResponseCache
	CacheTTL time.Duration

	// MaxPromptTokens prompt token 预算，<= 0 表示不截断
	MaxPromptTokens int
	Tokenizer       tokenizer.Tokenizer

	// OnCall 每次调用结束后回调，用于指标上报
	OnCall func(provider, outcome string, d time.Duration)
}

// Guard 为 Reasoner 叠加限流、熔断、缓存、请求合并与 prompt 预算
type Guard struct {
	inner   Reasoner
	cfg     GuardConfig
	limiter *rate.Limiter
	breaker circuitbreaker.CircuitBreaker
	group   singleflight.Group
	logger  *zap.Logger
}

// NewGuard 包装 Reasoner；inner 为 nil 时返回 nil，nil *Guard 的方法按“无 Oracle”处理
func NewGuard(inner Reasoner, cfg GuardConfig, logger *zap.Logger) *Guard {
	if inner == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "oracle_guard"), zap.String("provider", inner.Name()))

	g := &Guard{
		inner:   inner,
		cfg:     cfg,
		breaker: circuitbreaker.NewCircuitBreaker(cfg.Breaker, logger),
		logger:  logger,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return g
}

// Name 实现 Reasoner.Name
func (g *Guard) Name() string {
	if g == nil {
		return "none"
	}
	return g.inner.Name()
}

// Available 实现 Reasoner.Available
func (g *Guard) Available() bool {
	if g == nil {
		return false
	}
	return g.inner.Available() && g.breaker.Available()
}

// Complete 实现 Reasoner.Complete
func (g *Guard) Complete(ctx context.Context, prompt string, expectJSON bool) (string, error) {
	if g == nil {
		return "", ErrUnavailable
	}
	start := time.Now()
	if !g.Available() {
		g.report(OutcomeUnavailable, start)
		return "", ErrUnavailable
	}

	prompt = g.truncate(prompt)

	key, keyErr := cache.Key(g.inner.Name(), prompt, expectJSON)
	if expectJSON && g.cfg.Cache != nil && keyErr == nil {
		if v, ok, err := g.cfg.Cache.Get(ctx, key); err == nil && ok {
			g.report(OutcomeCacheHit, start)
			return v, nil
		} else if err != nil {
			g.logger.Debug("oracle cache read failed", zap.Error(err))
		}
	}

	call := func() (any, error) {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return "", err
			}
		}
		var out string
		err := g.breaker.Call(ctx, func(ctx context.Context) error {
			var err error
			out, err = g.inner.Complete(ctx, prompt, expectJSON)
			return err
		})
		return out, err
	}

	var (
		v   any
		err error
	)
	if keyErr == nil {
		v, err, _ = g.group.Do(key, call)
	} else {
		v, err = call()
	}
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyCallsInHalfOpen) {
			g.report(OutcomeUnavailable, start)
			return "", ErrUnavailable
		}
		g.report(OutcomeError, start)
		g.logger.Warn("oracle call failed", zap.Error(err))
		return "", err
	}

	out := v.(string)
	if expectJSON && g.cfg.Cache != nil && keyErr == nil {
		if _, err := ExtractJSON(out); err == nil {
			if err := g.cfg.Cache.Set(ctx, key, out, g.cfg.CacheTTL); err != nil {
				g.logger.Debug("oracle cache write failed", zap.Error(err))
			}
		}
	}
	g.report(OutcomeSuccess, start)
	return out, nil
}

func (g *Guard) truncate(prompt string) string {
	if g.cfg.MaxPromptTokens <= 0 || g.cfg.Tokenizer == nil {
		return prompt
	}
	out, err := g.cfg.Tokenizer.Truncate(prompt, g.cfg.MaxPromptTokens)
	if err != nil {
		g.logger.Debug("prompt truncation skipped", zap.Error(err))
		return prompt
	}
	if len(out) < len(prompt) {
		g.logger.Debug("prompt truncated to token budget",
			zap.Int("max_tokens", g.cfg.MaxPromptTokens),
			zap.Int("original_bytes", len(prompt)),
		)
	}
	return out
}

func (g *Guard) report(outcome string, start time.Time) {
	if g.cfg.OnCall != nil {
		g.cfg.OnCall(g.inner.Name(), outcome, time.Since(start))
	}
}
