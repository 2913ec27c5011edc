package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/BaSui01/agentrelay/agent/directory"
	"github.com/BaSui01/agentrelay/agent/memory"
	"github.com/BaSui01/agentrelay/agent/protocol/a2a"
	"github.com/BaSui01/agentrelay/config"
	"github.com/BaSui01/agentrelay/internal/cache"
	"github.com/BaSui01/agentrelay/internal/circuitbreaker"
	"github.com/BaSui01/agentrelay/internal/database"
	"github.com/BaSui01/agentrelay/internal/metrics"
	"github.com/BaSui01/agentrelay/internal/server"
	"github.com/BaSui01/agentrelay/internal/telemetry"
	"github.com/BaSui01/agentrelay/llm"
	llmcache "github.com/BaSui01/agentrelay/llm/cache"
	"github.com/BaSui01/agentrelay/llm/factory"
	"github.com/BaSui01/agentrelay/llm/providers"
	"github.com/BaSui01/agentrelay/types"
	"github.com/BaSui01/agentrelay/workflow"
	"github.com/BaSui01/agentrelay/workflow/history"
)

// analyzerSingleAgent 标记未经规划、直接交给单个代理的请求
const analyzerSingleAgent = "single_agent"

// Request 一次用户请求
type Request struct {
	Message   string
	Previous  string
	ContextID string
	UserID    string
}

// App 组合根：持有全部共享对象，按依赖顺序构建、逆序关闭
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	telemetry *telemetry.Providers
	collector *metrics.Collector
	registry  *directory.Registry
	client    *a2a.Client
	invoker   *a2a.Invoker
	oracle    llm.Reasoner
	memory    *memory.Memory
	history   *history.Store
	analyzer  *workflow.Analyzer
	executor  *workflow.Executor

	redis *cache.Manager
	db    *database.Pool

	closers []func(context.Context) error
}

// NewApp 按配置装配编排引擎。reg 为 nil 时指标注册到默认 registry
func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, reg *prometheus.Registry) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = app.Close(context.Background())
		}
	}()

	providersOTel, otelErr := telemetry.Init(ctx, cfg.Telemetry, Version, logger)
	if otelErr != nil {
		logger.Warn("telemetry disabled", zap.Error(otelErr))
	} else {
		app.telemetry = providersOTel
		app.onClose(providersOTel.Shutdown)
	}

	app.collector = metrics.NewCollector(metrics.DefaultNamespace, reg, logger)

	app.client = a2a.NewClient(transportConfig(cfg.Transport), logger,
		a2a.WithRequestHook(app.collector.RecordAgentRequest))

	if err := app.initDirectory(ctx); err != nil {
		return nil, err
	}
	app.invoker = a2a.NewInvoker(app.client, app.registry, logger)

	if err := app.initOracle(); err != nil {
		return nil, err
	}

	var recorders []workflow.Recorder
	if cfg.Memory.Enabled {
		if err := app.initMemory(); err != nil {
			return nil, err
		}
		if cfg.Memory.StoreWorkflows {
			recorders = append(recorders, app.memory)
		}
	}
	if cfg.History.Enabled {
		if err := app.initHistory(ctx); err != nil {
			return nil, err
		}
		recorders = append(recorders, app.history)
	}

	app.initWorkflow(recorders)
	return app, nil
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Close 逆序释放资源
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// =============================================================================
// 装配
// =============================================================================

func (a *App) initDirectory(ctx context.Context) error {
	dc := a.cfg.Directory
	regCfg := directory.DefaultConfig()
	if dc.FailureThreshold > 0 {
		regCfg.FailureThreshold = dc.FailureThreshold
	}
	if dc.OpenDuration > 0 {
		regCfg.OpenDuration = dc.OpenDuration
	}
	if dc.ProbeConcurrency > 0 {
		regCfg.ProbeConcurrency = dc.ProbeConcurrency
	}
	if dc.ProbeTimeout > 0 {
		regCfg.ProbeTimeout = dc.ProbeTimeout
	}

	a.registry = directory.NewRegistry(regCfg, a.logger,
		directory.WithStateChangeHook(a.collector.RecordBreakerTransition))

	for _, entry := range dc.Agents {
		agent := agentFromEntry(entry)
		if dc.DiscoverOnStart {
			card, err := a.client.Discover(ctx, entry.URL)
			if err != nil {
				a.logger.Warn("agent card discovery failed, using configured entry",
					zap.String("url", entry.URL), zap.Error(err))
			} else {
				agent = mergeCard(agent, card)
			}
		}
		if err := a.registry.Register(agent); err != nil {
			return fmt.Errorf("register agent %q: %w", entry.Name, err)
		}
	}

	if dc.DiscoverOnStart && len(dc.Agents) > 0 {
		online, err := a.registry.Probe(ctx, a.client.HealthCheck)
		if err != nil {
			return err
		}
		a.logger.Info("agent directory probed",
			zap.Int("agents", len(dc.Agents)), zap.Int("online", online))
	}
	return nil
}

func (a *App) initOracle() error {
	oc := a.cfg.Oracle
	inner, err := factory.NewReasoner(oc.Provider, providers.Config{
		APIKey:      oc.APIKey,
		BaseURL:     oc.BaseURL,
		Model:       oc.Model,
		Temperature: oc.Temperature,
		MaxTokens:   oc.MaxTokens,
		Timeout:     oc.Timeout,
		APIVersion:  oc.APIVersion,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("create oracle: %w", err)
	}
	if inner == nil {
		a.logger.Info("running without reasoning oracle")
		return nil
	}

	var responses llmcache.ResponseCache
	if oc.CacheTTL > 0 {
		if a.cfg.Redis.Addr != "" {
			mgr, err := a.redisManager()
			if err != nil {
				return err
			}
			responses = llmcache.NewRedisCache(mgr.Client(), "agentrelay:oracle:", a.logger)
		} else {
			responses = llmcache.NewMemoryCache()
		}
	}

	guard := llm.NewGuard(inner, llm.GuardConfig{
		RateLimit: oc.RateLimit,
		Burst:     oc.RateBurst,
		Breaker: &circuitbreaker.Config{
			Threshold:        oc.BreakerThreshold,
			ResetTimeout:     oc.BreakerResetTimeout,
			HalfOpenMaxCalls: 1,
		},
		Cache:           responses,
		CacheTTL:        oc.CacheTTL,
		MaxPromptTokens: oc.MaxPromptTokens,
		OnCall:          a.collector.RecordOracleCall,
	}, a.logger)
	a.oracle = guard
	return nil
}

func (a *App) initMemory() error {
	mc := a.cfg.Memory

	var store memory.Store
	switch mc.Backend {
	case "redis":
		mgr, err := a.redisManager()
		if err != nil {
			return err
		}
		store = memory.NewRedisStore(mgr.Client(), mc.KeyPrefix, a.logger)
	case "sql":
		pool, err := a.openDatabase()
		if err != nil {
			return err
		}
		if err := memory.MigrateSQLStore(pool.DB()); err != nil {
			return fmt.Errorf("migrate memory store: %w", err)
		}
		store = memory.NewSQLStore(pool.DB(), a.logger)
	default:
		store = memory.NewInMemoryStore(a.logger)
	}

	opts := []memory.Option{memory.WithCountHook(a.collector.SetMemoryEntries)}
	if a.oracle != nil {
		opts = append(opts, memory.WithReasoner(a.oracle))
	}
	a.memory = memory.NewMemory(store, memory.Config{MaxEntries: mc.MaxEntries}, a.logger, opts...)
	return nil
}

func (a *App) initHistory(ctx context.Context) error {
	pool, err := a.openDatabase()
	if err != nil {
		return err
	}
	if err := history.Migrate(pool.DB()); err != nil {
		return fmt.Errorf("migrate workflow history: %w", err)
	}
	a.history = history.NewStore(pool.DB(), a.logger)

	if retention := a.cfg.History.Retention; retention > 0 {
		pruned, err := a.history.Prune(ctx, time.Now().Add(-retention))
		if err != nil {
			a.logger.Warn("workflow history prune failed", zap.Error(err))
		} else if pruned > 0 {
			a.logger.Info("workflow history pruned", zap.Int64("rows", pruned))
		}
	}
	return nil
}

func (a *App) initWorkflow(recorders []workflow.Recorder) {
	oc := a.cfg.Orchestrator
	policy := workflow.RetryPolicy{
		MaxRetries:  oc.MaxRetries,
		Backoff:     oc.RetryBackoff,
		ModifyLimit: oc.ModifyLimit,
	}

	a.analyzer = workflow.NewAnalyzer(a.oracle, workflow.AnalyzerConfig{
		RetryPolicy:   policy,
		MaxIterations: oc.MaxIterations,
	}, a.logger)

	opts := []workflow.ExecutorOption{
		workflow.WithRecorders(recorders...),
		workflow.WithObserver(a.collector),
	}
	if oc.SupervisorEnabled {
		opts = append(opts, workflow.WithSupervisor(workflow.NewOracleSupervisor(a.oracle, workflow.SupervisorConfig{
			SoftFailureThreshold: oc.SoftFailureThreshold,
			PolicyRetries:        oc.MaxRetries,
		}, a.logger)))
	}
	if oc.HandoffEnabled {
		opts = append(opts, workflow.WithHandoffDetector(workflow.NewHandoffDetector(a.oracle, a.logger)))
	}

	a.executor = workflow.NewExecutor(a.registry, a.invoker, workflow.ExecutorConfig{
		StepTimeout:        oc.StepTimeout,
		WorkflowTimeout:    oc.WorkflowTimeout,
		SoftFailureMarkers: oc.SoftFailureMarkers,
	}, a.logger, opts...)
}

// redisManager 惰性创建，Oracle 缓存与记忆存储共用一个连接池
func (a *App) redisManager() (*cache.Manager, error) {
	if a.redis != nil {
		return a.redis, nil
	}
	rc := a.cfg.Redis
	cc := cache.DefaultConfig()
	cc.Addr = rc.Addr
	cc.Password = rc.Password
	cc.DB = rc.DB
	cc.TLS = rc.TLS
	if rc.PoolSize > 0 {
		cc.PoolSize = rc.PoolSize
	}
	if rc.MinIdleConns > 0 {
		cc.MinIdleConns = rc.MinIdleConns
	}

	mgr, err := cache.NewManager(cc, a.logger, cache.WithPoolHook(func(total, idle int) {
		a.collector.RecordDBConnections("redis", total, idle)
	}))
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a.redis = mgr
	a.onClose(func(context.Context) error { return mgr.Close() })
	return mgr, nil
}

// openDatabase 惰性创建，记忆存储与归档共用一个连接池
func (a *App) openDatabase() (*database.Pool, error) {
	if a.db != nil {
		return a.db, nil
	}
	driver := a.cfg.Database.Driver
	pool, err := database.Open(a.cfg.Database, a.logger, database.WithStatsHook(func(open, idle int) {
		a.collector.RecordDBConnections(driver, open, idle)
	}))
	if err != nil {
		return nil, err
	}
	a.db = pool
	a.onClose(func(context.Context) error { return pool.Close() })
	return pool, nil
}

// =============================================================================
// 请求处理
// =============================================================================

// Handle 分析并执行一次请求；无需多步时交给最匹配的单个代理
func (a *App) Handle(ctx context.Context, req Request) (*workflow.Workflow, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, types.NewInvalidRequestError("message is empty")
	}

	agents := a.registry.Available()
	if len(agents) == 0 {
		return nil, types.NewError(types.ErrAgentUnavailable, "no agents available")
	}

	wf := a.analyzer.Analyze(ctx, req.Message, agents, req.Previous)
	if wf == nil {
		wf = a.singleAgentWorkflow(ctx, req, agents)
	}

	return a.executor.Execute(ctx, wf, workflow.ExecuteOptions{
		ContextID:       req.ContextID,
		UserID:          req.UserID,
		AvailableAgents: agents,
	})
}

func (a *App) singleAgentWorkflow(ctx context.Context, req Request, agents []directory.Agent) *workflow.Workflow {
	target := selectAgent(req.Message, agents)

	prompt := req.Message
	if a.memory != nil {
		related, err := a.memory.GetRelevantContext(ctx, req.Message, a.cfg.Memory.ContextLimit)
		if err != nil {
			a.logger.Warn("memory context lookup failed", zap.Error(err))
		} else if related != "" {
			prompt = related + "\n\n" + req.Message
		}
	}

	step := workflow.NewStep(target.ID, target.Name, "respond", prompt)
	wf := workflow.New(analyzerSingleAgent, "Direct request to "+target.Name, step)
	wf.RetryPolicy = workflow.RetryPolicy{
		MaxRetries:  a.cfg.Orchestrator.MaxRetries,
		Backoff:     a.cfg.Orchestrator.RetryBackoff,
		ModifyLimit: a.cfg.Orchestrator.ModifyLimit,
	}
	wf.MaxIterations = a.cfg.Orchestrator.MaxIterations
	wf.Context = &workflow.AgentContext{OriginalRequest: req.Message, WorkflowID: wf.ID}
	wf.Metadata["analyzer"] = analyzerSingleAgent
	return wf
}

// selectAgent 按请求词与代理名称、描述、技能的重合度选择；并列取目录顺序靠前者
func selectAgent(message string, agents []directory.Agent) directory.Agent {
	words := strings.Fields(strings.ToLower(message))
	best, bestScore := 0, 0
	for i, ag := range agents {
		text := strings.ToLower(ag.SearchText())
		score := 0
		for _, w := range words {
			w = strings.Trim(w, ".,;:!?\"'()")
			if len(w) > 3 && strings.Contains(text, w) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return agents[best]
}

// =============================================================================
// HTTP
// =============================================================================

// Handler /metrics 与 /health 端点
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.collector.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if len(a.registry.Available()) == 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"degraded","reason":"no agents available"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return Chain(mux, Recovery(a.logger), RequestID(), SecurityHeaders(), OTelTracing(), RequestLogger(a.logger))
}

// ServerConfig 由 config.ServerConfig 转换
func (a *App) ServerConfig() server.Config {
	sc := server.DefaultConfig()
	sc.Addr = fmt.Sprintf(":%d", a.cfg.Server.HTTPPort)
	if a.cfg.Server.ReadTimeout > 0 {
		sc.ReadTimeout = a.cfg.Server.ReadTimeout
	}
	if a.cfg.Server.WriteTimeout > 0 {
		sc.WriteTimeout = a.cfg.Server.WriteTimeout
	}
	if a.cfg.Server.ShutdownTimeout > 0 {
		sc.ShutdownTimeout = a.cfg.Server.ShutdownTimeout
	}
	return sc
}

// =============================================================================
// 配置转换
// =============================================================================

func transportConfig(tc config.TransportConfig) a2a.ClientConfig {
	cc := a2a.DefaultClientConfig()
	if tc.Timeout > 0 {
		cc.Timeout = tc.Timeout
	}
	if tc.MaxAttempts > 0 {
		cc.MaxAttempts = tc.MaxAttempts
	}
	if tc.MinWait > 0 {
		cc.MinWait = tc.MinWait
	}
	if tc.MaxWait > 0 {
		cc.MaxWait = tc.MaxWait
	}
	cc.Headers = tc.Headers
	return cc
}

func agentFromEntry(e config.AgentEntry) directory.Agent {
	id := e.ID
	if id == "" {
		id = e.Name
	}
	agent := directory.Agent{
		ID:          id,
		Name:        e.Name,
		Description: e.Description,
		URL:         e.URL,
		Version:     e.Version,
		Status:      directory.AgentStatusOnline,
	}
	if len(e.Tags) > 0 {
		agent.Metadata = map[string]string{"tags": strings.Join(e.Tags, ",")}
	}
	for _, s := range e.Skills {
		skillID := s.ID
		if skillID == "" {
			skillID = s.Name
		}
		agent.Skills = append(agent.Skills, directory.Skill{
			ID:          skillID,
			Name:        s.Name,
			Description: s.Description,
			Tags:        s.Tags,
		})
	}
	return agent
}

// mergeCard 代理卡补全配置中缺失的字段；配置里的 ID 与 URL 优先
func mergeCard(agent directory.Agent, card *a2a.AgentCard) directory.Agent {
	fromCard := card.ToAgent()
	if agent.Description == "" {
		agent.Description = fromCard.Description
	}
	if agent.Version == "" {
		agent.Version = fromCard.Version
	}
	if len(agent.Skills) == 0 {
		agent.Skills = fromCard.Skills
	}
	for k, v := range fromCard.Metadata {
		if agent.Metadata == nil {
			agent.Metadata = make(map[string]string)
		}
		if _, ok := agent.Metadata[k]; !ok {
			agent.Metadata[k] = v
		}
	}
	return agent
}
