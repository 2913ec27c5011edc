package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrPoolClosed Close 之后再使用连接池
var ErrPoolClosed = errors.New("database pool is closed")

// pingTimeout 单次探活的上限
const pingTimeout = 5 * time.Second

// Limits 连接池上限；零值字段保持 database/sql 的默认行为
type Limits struct {
	MaxOpen     int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdle     int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	MaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	MaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
	// Monitor 探活并上报连接数的间隔，0 表示关闭
	Monitor time.Duration `yaml:"monitor_interval" json:"monitor_interval"`
}

// DefaultLimits 记忆存储与归档的写入量都很小，池子不必大
func DefaultLimits() Limits {
	return Limits{
		MaxOpen:     20,
		MaxIdle:     5,
		MaxLifetime: time.Hour,
		MaxIdleTime: 10 * time.Minute,
		Monitor:     30 * time.Second,
	}
}

func (l Limits) apply(db *sql.DB) {
	db.SetMaxOpenConns(l.MaxOpen)
	db.SetMaxIdleConns(l.MaxIdle)
	db.SetConnMaxLifetime(l.MaxLifetime)
	db.SetConnMaxIdleTime(l.MaxIdleTime)
}

// Option 配置 Pool
type Option func(*Pool)

// WithStatsHook 每次探活成功后回调打开与空闲连接数
func WithStatsHook(fn func(open, idle int)) Option {
	return func(p *Pool) { p.onStats = fn }
}

// Pool 记忆 SQL 存储与工作流归档共用的 gorm 连接
type Pool struct {
	gdb     *gorm.DB
	raw     *sql.DB
	limits  Limits
	logger  *zap.Logger
	onStats func(open, idle int)

	mu      sync.RWMutex
	closed  bool
	stop    context.CancelFunc
	stopped chan struct{}
}

// NewPool 包装已打开的 gorm 连接并应用上限
func NewPool(gdb *gorm.DB, limits Limits, logger *zap.Logger, opts ...Option) (*Pool, error) {
	if gdb == nil {
		return nil, errors.New("gorm db is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	raw, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap sql.DB: %w", err)
	}
	limits.apply(raw)

	p := &Pool{
		gdb:     gdb,
		raw:     raw,
		limits:  limits,
		logger:  logger.With(zap.String("component", "db_pool"), zap.String("dialect", gdb.Dialector.Name())),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.stop = cancel
	if limits.Monitor > 0 {
		go p.monitor(ctx)
	} else {
		close(p.stopped)
	}

	p.logger.Info("database pool ready",
		zap.Int("max_open", limits.MaxOpen),
		zap.Int("max_idle", limits.MaxIdle),
	)
	return p, nil
}

// DB 返回共享的 gorm 句柄
func (p *Pool) DB() *gorm.DB { return p.gdb }

// Stats 底层连接池统计
func (p *Pool) Stats() sql.DBStats { return p.raw.Stats() }

// Ping 探活；关闭后返回 ErrPoolClosed
func (p *Pool) Ping(ctx context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	return p.raw.PingContext(ctx)
}

// Close 停止监控并关闭连接，可重复调用
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.stop()
	<-p.stopped
	p.logger.Info("database pool closed")
	return p.raw.Close()
}

func (p *Pool) monitor(ctx context.Context) {
	defer close(p.stopped)
	ticker := time.NewTicker(p.limits.Monitor)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.report(ctx)
		}
	}
}

// report 探活一次；成功时上报连接数
func (p *Pool) report(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := p.Ping(pingCtx); err != nil {
		if !errors.Is(err, ErrPoolClosed) && ctx.Err() == nil {
			p.logger.Warn("database ping failed", zap.Error(err))
		}
		return
	}
	st := p.Stats()
	if p.onStats != nil {
		p.onStats(st.OpenConnections, st.Idle)
	}
	p.logger.Debug("database pool stats",
		zap.Int("open", st.OpenConnections),
		zap.Int("in_use", st.InUse),
		zap.Int("idle", st.Idle),
	)
}
