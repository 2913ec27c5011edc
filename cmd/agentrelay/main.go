// =============================================================================
// agentrelay 主入口
// =============================================================================
// 使用方法:
//
//	agentrelay run -message "..."                 # 执行一次请求
//	agentrelay run -message "..." -serve          # 执行后继续暴露 /metrics
//	agentrelay agents --config config.yaml        # 列出代理目录
//	agentrelay migrate up                         # 运行数据库迁移
//	agentrelay mock-agent -name echo -addr :9100  # 启动回显代理
//	agentrelay version                            # 显示版本信息
// =============================================================================

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentrelay/agent/protocol/a2a"
	"github.com/BaSui01/agentrelay/config"
	"github.com/BaSui01/agentrelay/internal/server"
	"github.com/BaSui01/agentrelay/workflow"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "run":
		err = runRequest(ctx, os.Args[2:], os.Stdout)
	case "agents":
		err = runAgents(ctx, os.Args[2:], os.Stdout)
	case "migrate":
		err = runMigrate(ctx, os.Args[2:], os.Stdout)
	case "mock-agent":
		err = runMockAgent(ctx, os.Args[2:])
	case "version":
		printVersion(os.Stdout)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig 加载并校验配置
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// ▶️ run 命令
// =============================================================================

func runRequest(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	message := fs.String("message", "", "User request to execute")
	previous := fs.String("previous", "", "Output of the previous turn, for follow-up requests")
	contextID := fs.String("context-id", "", "Conversation context forwarded to agents")
	userID := fs.String("user-id", "", "User identifier forwarded to agents")
	serve := fs.Bool("serve", false, "Keep serving /metrics and /health after the run")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *message == "" {
		return fmt.Errorf("-message is required")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	app, err := NewApp(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer closeApp(app, logger)

	var srv *server.Manager
	if *serve {
		srv = server.NewManager(app.Handler(), app.ServerConfig(), logger, server.WithRequestHook(app.collector.RecordHTTPRequest))
		if err := srv.Start(); err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		logger.Info("serving metrics", zap.String("addr", srv.Addr()))
	}

	wf, err := app.Handle(ctx, Request{
		Message:   *message,
		Previous:  *previous,
		ContextID: *contextID,
		UserID:    *userID,
	})
	if err != nil {
		return err
	}
	printWorkflow(out, wf)

	if srv != nil {
		return srv.WaitForShutdown(ctx)
	}
	return nil
}

func printWorkflow(out io.Writer, wf *workflow.Workflow) {
	if wf.Status == workflow.StatusCompleted {
		fmt.Fprintln(out, workflow.BuildReport(wf))
		return
	}
	fmt.Fprintln(out, workflow.FailureSummary(wf))
}

// =============================================================================
// 📋 agents 命令
// =============================================================================

func runAgents(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("agents", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	probe := fs.Bool("probe", false, "Health-check every agent before listing")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	app, err := NewApp(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer closeApp(app, logger)

	if *probe {
		if _, err := app.registry.Probe(ctx, app.client.HealthCheck); err != nil {
			return err
		}
	}
	app.WriteAgents(out)
	return nil
}

// WriteAgents 以表格输出代理目录
func (a *App) WriteAgents(out io.Writer) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tBREAKER\tCALLS\tSUCCESS\tP95\tURL")
	for _, ag := range a.registry.List() {
		breaker, _ := a.registry.BreakerState(ag.ID)
		m, _ := a.registry.Metrics(ag.ID)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%.0f%%\t%s\t%s\n",
			ag.ID, ag.Name, ag.Status, breaker, m.TotalRequests, m.SuccessRate, m.P95Latency, ag.URL)
	}
	tw.Flush()
}

// =============================================================================
// 🤖 mock-agent 命令
// =============================================================================

func runMockAgent(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("mock-agent", flag.ContinueOnError)
	addr := fs.String("addr", ":9100", "Listen address")
	name := fs.String("name", "echo", "Agent name")
	description := fs.String("description", "Echoes the prompt back", "Agent description")
	legacy := fs.Bool("legacy", false, "Only accept the legacy message/send method")
	token := fs.String("token", "", "Bearer token required from callers")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logger := initLogger(config.DefaultLogConfig())
	defer logger.Sync()

	card := a2a.AgentCard{
		Name:        *name,
		Description: *description,
		URL:         "http://localhost" + *addr,
		Version:     Version,
	}
	handler := a2a.NewServer(a2a.ServerConfig{
		Card:       card,
		LegacyOnly: *legacy,
		AuthToken:  *token,
	}, a2a.EchoHandler, logger)

	srvCfg := server.DefaultConfig()
	srvCfg.Addr = *addr
	srv := server.NewManager(Chain(handler, Recovery(logger), RequestID(), RequestLogger(logger)), srvCfg, logger)
	if err := srv.Start(); err != nil {
		return err
	}
	logger.Info("mock agent listening", zap.String("addr", srv.Addr()), zap.String("name", *name))
	return srv.WaitForShutdown(ctx)
}

func closeApp(app *App, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Close(ctx); err != nil {
		logger.Warn("shutdown finished with errors", zap.Error(err))
	}
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion(out io.Writer) {
	fmt.Fprintf(out, "agentrelay %s\n", Version)
	fmt.Fprintf(out, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(out, "  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`agentrelay - multi-agent workflow orchestrator

Usage:
  agentrelay <command> [options]

Commands:
  run         Analyze and execute one request
  agents      List the agent directory with breaker state
  migrate     Database migration commands
  mock-agent  Start an echo A2A agent for local testing
  version     Show version information
  help        Show this help message

Options for 'run':
  -message <text>     User request (required)
  -previous <text>    Output of the previous turn
  -context-id <id>    Conversation context forwarded to agents
  -user-id <id>       User identifier forwarded to agents
  -config <path>      Path to configuration file (YAML)
  -serve              Keep serving /metrics and /health after the run

Examples:
  agentrelay run -message "research the topic then write a summary"
  agentrelay run -config /etc/agentrelay/config.yaml -message "..." -serve
  agentrelay agents -probe
  agentrelay migrate up
  agentrelay version`)
}
