package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/agentrelay/internal/tlsutil"
)

// ErrClosed Close 之后再使用管理器
var ErrClosed = errors.New("redis manager is closed")

const dialCheckTimeout = 5 * time.Second

// Config Redis 连接参数
type Config struct {
	Addr         string `yaml:"addr" json:"addr"`
	Password     string `yaml:"password" json:"password"`
	DB           int    `yaml:"db" json:"db"`
	TLS          bool   `yaml:"tls" json:"tls"`
	MaxRetries   int    `yaml:"max_retries" json:"max_retries"`
	PoolSize     int    `yaml:"pool_size" json:"pool_size"`
	MinIdleConns int    `yaml:"min_idle_conns" json:"min_idle_conns"`
	// Monitor 探活并上报连接池状态的间隔，0 表示关闭
	Monitor time.Duration `yaml:"monitor_interval" json:"monitor_interval"`
}

// DefaultConfig 本地单实例
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		MaxRetries:   3,
		PoolSize:     10,
		MinIdleConns: 2,
		Monitor:      30 * time.Second,
	}
}

// Option 配置 Manager
type Option func(*Manager)

// WithPoolHook 每次探活成功后回调总连接数与空闲连接数
func WithPoolHook(fn func(total, idle int)) Option {
	return func(m *Manager) { m.onPool = fn }
}

// Manager 持有进程内唯一的 Redis 连接。共享记忆的 Redis 存储和
// Oracle 响应缓存都通过 Client() 复用同一个连接池。
type Manager struct {
	client *redis.Client
	cfg    Config
	logger *zap.Logger
	onPool func(total, idle int)

	mu      sync.RWMutex
	closed  bool
	stop    context.CancelFunc
	stopped chan struct{}
}

// NewManager 连接 Redis，确认可达后返回
func NewManager(cfg Config, logger *zap.Logger, opts ...Option) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ro := &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	}
	if cfg.TLS {
		ro.TLSConfig = tlsutil.DefaultTLSConfig()
	}
	client := redis.NewClient(ro)

	ctx, cancel := context.WithTimeout(context.Background(), dialCheckTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s unreachable: %w", cfg.Addr, err)
	}

	m := &Manager{
		client:  client,
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "redis"), zap.String("addr", cfg.Addr)),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	monitorCtx, stop := context.WithCancel(context.Background())
	m.stop = stop
	if cfg.Monitor > 0 {
		go m.monitor(monitorCtx)
	} else {
		close(m.stopped)
	}

	m.logger.Info("redis connected", zap.Int("pool_size", cfg.PoolSize), zap.Bool("tls", cfg.TLS))
	return m, nil
}

// Client 共享的底层连接
func (m *Manager) Client() *redis.Client { return m.client }

// Ping 探活；关闭后返回 ErrClosed
func (m *Manager) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return m.client.Ping(ctx).Err()
}

// PoolStats 连接池状态
func (m *Manager) PoolStats() *redis.PoolStats { return m.client.PoolStats() }

// Close 停止监控并关闭连接，可重复调用
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.stop()
	<-m.stopped
	m.logger.Info("redis connection closed")
	return m.client.Close()
}

func (m *Manager) monitor(ctx context.Context) {
	defer close(m.stopped)
	ticker := time.NewTicker(m.cfg.Monitor)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.report(ctx)
		}
	}
}

func (m *Manager) report(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, dialCheckTimeout)
	defer cancel()
	if err := m.Ping(pingCtx); err != nil {
		if !errors.Is(err, ErrClosed) && ctx.Err() == nil {
			m.logger.Warn("redis ping failed", zap.Error(err))
		}
		return
	}
	if m.onPool != nil {
		st := m.PoolStats()
		m.onPool(int(st.TotalConns), int(st.IdleConns))
	}
}
