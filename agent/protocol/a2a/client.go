package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/agentrelay/agent/directory"
	"github.com/BaSui01/agentrelay/internal/tlsutil"
	"github.com/BaSui01/agentrelay/llm/retry"
	"github.com/BaSui01/agentrelay/types"
)

const instrumentationName = "github.com/BaSui01/agentrelay/agent/protocol/a2a"

// maxResponseBytes 单次响应体上限
const maxResponseBytes = 10 << 20

// 代理卡路径，按顺序尝试
var cardPaths = []string{
	"/.well-known/agent-card.json",
	"/.well-known/agent.json",
	"/agent-card",
}

// 请求结果标签
const (
	OutcomeOK             = "ok"
	OutcomeHTTPError      = "http_error"
	OutcomeRPCError       = "rpc_error"
	OutcomeTransportError = "transport_error"
)

// ClientConfig A2A 客户端配置.
type ClientConfig struct {
	// Timeout 单次 HTTP 请求超时
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// MaxAttempts 传输层总尝试次数（含首次）
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`
	// MinWait / MaxWait 指数退避区间
	MinWait time.Duration `yaml:"min_wait" json:"min_wait"`
	MaxWait time.Duration `yaml:"max_wait" json:"max_wait"`
	// Headers 附加到每个请求的头
	Headers map[string]string `yaml:"headers" json:"headers"`
	// CardTTL 代理卡缓存时长
	CardTTL time.Duration `yaml:"card_ttl" json:"card_ttl"`
}

// DefaultClientConfig 返回默认配置.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:     60 * time.Second,
		MaxAttempts: 3,
		MinWait:     1 * time.Second,
		MaxWait:     4 * time.Second,
		CardTTL:     5 * time.Minute,
	}
}

// RequestHook 每次 HTTP 往返（含重试）结束后回调，用于指标.
type RequestHook func(method, outcome string, d time.Duration)

// ClientOption 客户端选项.
type ClientOption func(*Client)

// WithHTTPClient 替换底层 http.Client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRequestHook 设置请求回调
func WithRequestHook(fn RequestHook) ClientOption {
	return func(c *Client) { c.onRequest = fn }
}

// Client JSON-RPC A2A 客户端，同时支持标准 SendMessage 与旧版 message/send.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	tracer     trace.Tracer
	onRequest  RequestHook
	logger     *zap.Logger

	cardCache map[string]cachedCard
	cacheMu   sync.RWMutex
}

type cachedCard struct {
	card      *AgentCard
	expiresAt time.Time
}

// NewClient 创建客户端.
func NewClient(config ClientConfig, logger *zap.Logger, opts ...ClientOption) *Client {
	def := DefaultClientConfig()
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.MinWait <= 0 {
		config.MinWait = def.MinWait
	}
	if config.MaxWait < config.MinWait {
		config.MaxWait = config.MinWait
	}
	if config.CardTTL <= 0 {
		config.CardTTL = def.CardTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		config:     config,
		httpClient: tlsutil.SecureHTTPClient(config.Timeout),
		tracer:     otel.Tracer(instrumentationName),
		logger:     logger.With(zap.String("component", "a2a_client")),
		cardCache:  make(map[string]cachedCard),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send 向代理发送一次逻辑调用.
//
// 请求 ID、JSON-RPC id 与 messageId 只生成一次，传输层重试和旧版降级都复用。
// 标准方法返回非 200 或 -32601 时降级到 message/send。
// 代理返回的 JSON-RPC 错误或 failed 状态以 AGENT_ERROR 返回。
func (c *Client) Send(ctx context.Context, endpoint string, req Request) (*Response, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, types.NewInvalidRequestError("agent endpoint is required")
	}
	url := strings.TrimRight(endpoint, "/") + "/tasks/send"
	ids := callIDs{
		RequestID: uuid.NewString(),
		RPCID:     uuid.NewString(),
		MessageID: uuid.NewString(),
	}

	ctx, span := c.tracer.Start(ctx, "a2a.Send",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("a2a.endpoint", endpoint),
			attribute.String("a2a.request_id", ids.RequestID),
			attribute.String("a2a.context_id", req.ContextID),
		),
	)
	defer span.End()

	out, err := c.send(ctx, url, ids, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("a2a.state", out.State))
	return out, nil
}

func (c *Client) send(ctx context.Context, url string, ids callIDs, req Request) (*Response, error) {
	res, err := c.post(ctx, url, MethodSendMessage, ids, req)
	if err != nil {
		return nil, err
	}

	if res.status != http.StatusOK || (res.rpc.Error != nil && res.rpc.Error.Code == codeMethodNotFound) {
		c.logger.Info("standard method rejected, falling back to legacy",
			zap.String("url", url),
			zap.Int("status", res.status),
			zap.String("request_id", ids.RequestID),
		)
		res, err = c.post(ctx, url, MethodLegacySend, ids, req)
		if err != nil {
			return nil, err
		}
		if res.status != http.StatusOK {
			return nil, types.NewError(types.ErrUpstreamError, fmt.Sprintf("agent error: HTTP %d", res.status)).
				WithHTTPStatus(res.status).
				WithRetryable(res.status >= 500 || res.status == http.StatusTooManyRequests)
		}
	}

	if e := res.rpc.Error; e != nil {
		return nil, types.NewError(types.ErrAgent, fmt.Sprintf("agent returned error %d: %s", e.Code, e.Message))
	}

	out, err := parseResult(res.rpc.Result)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "invalid agent response").WithCause(err)
	}
	if out.State == StateFailed {
		return nil, types.NewError(types.ErrAgent, "agent reported failure: "+out.Content)
	}
	return out, nil
}

type postResult struct {
	status int
	rpc    rpcResponse
}

// post 执行一次 JSON-RPC 调用，只对连接类与超时类错误重试.
func (c *Client) post(ctx context.Context, url, method string, ids callIDs, req Request) (*postResult, error) {
	body, err := json.Marshal(buildRequest(method, ids, req))
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to marshal request").WithCause(err)
	}

	policy := retry.RetryPolicy{
		MaxAttempts:  c.config.MaxAttempts,
		InitialDelay: c.config.MinWait,
		MaxDelay:     c.config.MaxWait,
		Multiplier:   2.0,
		ShouldRetry: func(err error) bool {
			return ctx.Err() == nil && isTransient(err)
		},
	}

	start := time.Now()
	res, err := retry.DoTyped(retry.NewBackoffRetryer(&policy, c.logger), ctx, func(ctx context.Context) (*postResult, error) {
		return c.do(ctx, url, body, ids.RequestID, req.UserID)
	})

	outcome := OutcomeOK
	switch {
	case err != nil:
		outcome = OutcomeTransportError
	case res.status != http.StatusOK:
		outcome = OutcomeHTTPError
	case res.rpc.Error != nil:
		outcome = OutcomeRPCError
	}
	if c.onRequest != nil {
		c.onRequest(method, outcome, time.Since(start))
	}

	if err != nil {
		return nil, c.transportError(ctx, err)
	}
	return res, nil
}

func (c *Client) do(ctx context.Context, url string, body []byte, requestID, userID string) (*postResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-Id", requestID)
	if userID != "" {
		httpReq.Header.Set("X-User-Id", userID)
	}
	for k, v := range c.config.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}
	res := &postResult{status: resp.StatusCode}
	if resp.StatusCode != http.StatusOK {
		return res, nil
	}
	if err := json.Unmarshal(data, &res.rpc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return res, nil
}

func (c *Client) transportError(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return types.NewError(types.ErrCanceled, "agent request canceled").WithCause(err)
	case errors.Is(ctx.Err(), context.DeadlineExceeded), isTimeout(err):
		return types.NewError(types.ErrTimeout, "agent request timed out").WithRetryable(true).WithCause(err)
	case errors.Is(err, ErrInvalidMessage):
		return types.NewError(types.ErrUpstreamError, "invalid agent response").WithCause(err)
	default:
		return types.NewTransportError("agent request failed", err)
	}
}

// isTransient 连接失败、超时与连接被重置视为可重试.
func isTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrInvalidMessage) {
		return false
	}
	if isTimeout(err) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// HealthCheck 依次尝试代理卡路径与 /health，任一返回 200 即在线.
// 签名与 directory.HealthChecker 一致。
func (c *Client) HealthCheck(ctx context.Context, agent directory.Agent) error {
	base := strings.TrimRight(agent.URL, "/")
	if base == "" {
		return fmt.Errorf("%w: empty url", ErrRemoteUnavailable)
	}
	var lastErr error
	for _, path := range append(append([]string(nil), cardPaths...), "/health") {
		status, _, err := c.get(ctx, base+path)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if status == http.StatusOK {
			return nil
		}
		lastErr = fmt.Errorf("%s returned HTTP %d", path, status)
	}
	return fmt.Errorf("%w: %v", ErrRemoteUnavailable, lastErr)
}

// Discover 获取代理卡，结果按 CardTTL 缓存.
func (c *Client) Discover(ctx context.Context, baseURL string) (*AgentCard, error) {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		return nil, fmt.Errorf("%w: empty url", ErrRemoteUnavailable)
	}

	c.cacheMu.RLock()
	if cached, ok := c.cardCache[base]; ok && time.Now().Before(cached.expiresAt) {
		c.cacheMu.RUnlock()
		return cached.card, nil
	}
	c.cacheMu.RUnlock()

	var lastErr error
	for _, path := range cardPaths {
		status, body, err := c.get(ctx, base+path)
		if err != nil {
			lastErr = err
			continue
		}
		if status != http.StatusOK {
			lastErr = fmt.Errorf("%s returned HTTP %d", path, status)
			continue
		}
		var card AgentCard
		if err := json.Unmarshal(body, &card); err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrInvalidMessage, err)
			continue
		}
		if card.URL == "" {
			card.URL = base
		}
		if err := card.Validate(); err != nil {
			return nil, err
		}

		c.cacheMu.Lock()
		c.cardCache[base] = cachedCard{card: &card, expiresAt: time.Now().Add(c.config.CardTTL)}
		c.cacheMu.Unlock()

		c.logger.Debug("discovered agent card", zap.String("url", base), zap.String("name", card.Name))
		return &card, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrRemoteUnavailable, lastErr)
}

func (c *Client) get(ctx context.Context, url string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}
