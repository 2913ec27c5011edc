package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/BaSui01/agentrelay/types"
	"go.uber.org/zap"
)

// State 熔断器状态
type State int32

const (
	// StateClosed 关闭状态（正常工作）
	StateClosed State = iota
	// StateOpen 打开状态（熔断中）
	StateOpen
	// StateHalfOpen 半开状态（试探性恢复）
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config 熔断器配置
type Config struct {
	// Threshold 连续失败次数阈值（触发熔断）
	Threshold int

	// Timeout 单次调用超时时间，仅 Call 使用
	Timeout time.Duration

	// ResetTimeout 熔断恢复等待时间（从 Open -> HalfOpen）
	ResetTimeout time.Duration

	// HalfOpenMaxCalls 半开状态下允许的并发探测数
	HalfOpenMaxCalls int

	// OnStateChange 状态变更回调，同步调用，不得阻塞
	OnStateChange func(from State, to State)
}

// DefaultConfig 返回默认配置: 连续 3 次失败后熔断 60 秒，随后放行一次探测
func DefaultConfig() *Config {
	return &Config{
		Threshold:        3,
		Timeout:          30 * time.Second,
		ResetTimeout:     60 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// CircuitBreaker 熔断器接口
type CircuitBreaker interface {
	// Allow 申请一次调用许可；打开状态返回 ErrCircuitOpen
	Allow() error

	// Record 上报 Allow 之后那次调用的结果
	Record(success bool)

	// Release 归还 Allow 取得的许可但不上报结果，用于调用方取消
	Release()

	// Call 组合 Allow / Record，并为 fn 施加 Timeout
	Call(ctx context.Context, fn func(ctx context.Context) error) error

	// Available 只读检查，不消耗半开探测配额
	Available() bool

	// State 获取当前状态
	State() State

	// Failures 当前连续失败次数
	Failures() int

	// Reset 重置熔断器（手动恢复）
	Reset()
}

// breaker 无锁实现。所有字段都通过 atomic 访问，
// 状态迁移用 CompareAndSwap 保证只有一个调用方触发回调。
type breaker struct {
	config *Config
	logger *zap.Logger
	now    func() time.Time

	state    atomic.Int32
	failures atomic.Int32
	openedAt atomic.Int64 // unix nano
	probes   atomic.Int32 // 半开状态下已放行的探测数
}

// Option 熔断器选项
type Option func(*breaker)

// WithClock 注入时钟，测试用
func WithClock(now func() time.Time) Option {
	return func(b *breaker) {
		if now != nil {
			b.now = now
		}
	}
}

// NewCircuitBreaker 创建熔断器
func NewCircuitBreaker(config *Config, logger *zap.Logger, opts ...Option) CircuitBreaker {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg := *config
	if cfg.Threshold <= 0 {
		cfg.Threshold = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 60 * time.Second
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 1
	}

	b := &breaker{
		config: &cfg,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Allow 实现 CircuitBreaker.Allow
func (b *breaker) Allow() error {
	for {
		switch State(b.state.Load()) {
		case StateClosed:
			return nil

		case StateOpen:
			if !b.cooledDown() {
				return ErrCircuitOpen
			}
			// 只有赢得 CAS 的调用方负责通知；输掉的重新读取状态
			if b.transition(StateOpen, StateHalfOpen) {
				b.logger.Info("熔断器进入半开状态")
			}

		case StateHalfOpen:
			if n := b.probes.Add(1); int(n) > b.config.HalfOpenMaxCalls {
				b.probes.Add(-1)
				return ErrTooManyCallsInHalfOpen
			}
			return nil

		default:
			return fmt.Errorf("unknown breaker state: %d", b.state.Load())
		}
	}
}

// Record 实现 CircuitBreaker.Record
func (b *breaker) Record(success bool) {
	if success {
		b.failures.Store(0)
		if b.transition(StateHalfOpen, StateClosed) {
			b.logger.Info("熔断器恢复正常")
		}
		b.probes.Store(0)
		return
	}

	n := b.failures.Add(1)
	switch State(b.state.Load()) {
	case StateClosed:
		if int(n) < b.config.Threshold {
			return
		}
		b.openedAt.Store(b.now().UnixNano())
		b.probes.Store(0)
		if b.transition(StateClosed, StateOpen) {
			b.logger.Warn("熔断器打开",
				zap.Int32("failure_count", n),
				zap.Int("threshold", b.config.Threshold),
			)
		}

	case StateHalfOpen:
		b.openedAt.Store(b.now().UnixNano())
		b.probes.Store(0)
		if b.transition(StateHalfOpen, StateOpen) {
			b.logger.Warn("熔断器半开状态失败，重新打开")
		}
	}
}

// Call 实现 CircuitBreaker.Call
func (b *breaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.Allow(); err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	defer cancel()

	err := fn(callCtx)
	// 调用方取消不计入熔断失败
	if err != nil && ctx.Err() != nil {
		b.Release()
		return err
	}
	b.Record(err == nil || isClientError(err))
	return err
}

// Release 实现 CircuitBreaker.Release
func (b *breaker) Release() {
	if State(b.state.Load()) == StateHalfOpen {
		b.probes.Store(0)
	}
}

// Available 实现 CircuitBreaker.Available
func (b *breaker) Available() bool {
	switch State(b.state.Load()) {
	case StateClosed:
		return true
	case StateOpen:
		return b.cooledDown()
	case StateHalfOpen:
		return int(b.probes.Load()) < b.config.HalfOpenMaxCalls
	default:
		return false
	}
}

// State 实现 CircuitBreaker.State
func (b *breaker) State() State {
	return State(b.state.Load())
}

// Failures 实现 CircuitBreaker.Failures
func (b *breaker) Failures() int {
	return int(b.failures.Load())
}

// Reset 实现 CircuitBreaker.Reset
func (b *breaker) Reset() {
	old := State(b.state.Swap(int32(StateClosed)))
	b.failures.Store(0)
	b.probes.Store(0)

	b.logger.Info("熔断器已重置", zap.String("from_state", old.String()))
	if old != StateClosed && b.config.OnStateChange != nil {
		b.config.OnStateChange(old, StateClosed)
	}
}

func (b *breaker) cooledDown() bool {
	opened := time.Unix(0, b.openedAt.Load())
	return b.now().Sub(opened) >= b.config.ResetTimeout
}

func (b *breaker) transition(from, to State) bool {
	if !b.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	if b.config.OnStateChange != nil {
		b.config.OnStateChange(from, to)
	}
	return true
}

// isClientError 判断错误是否为调用方错误（不应计入熔断失败）
func isClientError(err error) bool {
	switch types.GetErrorCode(err) {
	case types.ErrInvalidRequest, types.ErrAgentNotFound:
		return true
	}
	return false
}

// 错误定义
var (
	ErrCircuitOpen            = errors.New("circuit breaker is open")
	ErrTooManyCallsInHalfOpen = errors.New("too many calls in half-open state")
)
