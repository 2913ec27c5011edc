// =============================================================================
// 📦 AgentRelay 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("AGENTRELAY").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量 → 验证器
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultEnvPrefix 环境变量前缀
const DefaultEnvPrefix = "AGENTRELAY"

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 AgentRelay 的完整配置结构
type Config struct {
	// Server 健康检查与指标端点
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Redis 缓存配置（记忆存储与 Oracle 缓存共用）
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database 数据库配置（SQL 记忆存储与工作流归档）
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Oracle 推理 Oracle 配置
	Oracle OracleConfig `yaml:"oracle" env:"ORACLE"`

	// Orchestrator 工作流编排配置
	Orchestrator OrchestratorConfig `yaml:"orchestrator" env:"ORCHESTRATOR"`

	// Transport A2A 传输配置
	Transport TransportConfig `yaml:"transport" env:"TRANSPORT"`

	// Directory Agent 目录配置
	Directory DirectoryConfig `yaml:"directory" env:"DIRECTORY"`

	// Memory 记忆存储配置
	Memory MemoryConfig `yaml:"memory" env:"MEMORY"`

	// History 工作流归档配置
	History HistoryConfig `yaml:"history" env:"HISTORY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口（/health 与 /metrics）
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	// TLS 启用 TLS 连接
	TLS bool `yaml:"tls" env:"TLS"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名；sqlite 时为文件路径
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// OracleConfig 推理 Oracle 配置
type OracleConfig struct {
	// Provider: openai, azure, anthropic, gemini, none
	Provider string `yaml:"provider" env:"PROVIDER"`
	// 模型名称，空则使用 provider 默认值
	Model string `yaml:"model" env:"MODEL"`
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 基础 URL（Azure 必填）
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// Azure API 版本
	APIVersion string `yaml:"api_version" env:"API_VERSION"`
	// 温度参数
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	// 最大 Token 数
	MaxTokens int `yaml:"max_tokens" env:"MAX_TOKENS"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 每秒请求数，<= 0 不限流
	RateLimit float64 `yaml:"rate_limit" env:"RATE_LIMIT"`
	// 突发上限
	RateBurst int `yaml:"rate_burst" env:"RATE_BURST"`
	// 连续失败多少次后熔断
	BreakerThreshold int `yaml:"breaker_threshold" env:"BREAKER_THRESHOLD"`
	// 熔断恢复等待时间
	BreakerResetTimeout time.Duration `yaml:"breaker_reset_timeout" env:"BREAKER_RESET_TIMEOUT"`
	// 结构化响应缓存时长，<= 0 不缓存
	CacheTTL time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
	// prompt token 预算，<= 0 不截断
	MaxPromptTokens int `yaml:"max_prompt_tokens" env:"MAX_PROMPT_TOKENS"`
}

// OrchestratorConfig 编排配置
type OrchestratorConfig struct {
	// 单个工作流最多步骤数
	MaxIterations int `yaml:"max_iterations" env:"MAX_ITERATIONS"`
	// 单步最多尝试次数
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// 重试退避基数，按 (attempt+1) 线性放大
	RetryBackoff time.Duration `yaml:"retry_backoff" env:"RETRY_BACKOFF"`
	// 单步最多改写任务次数
	ModifyLimit int `yaml:"modify_limit" env:"MODIFY_LIMIT"`
	// 单次 Agent 调用超时
	StepTimeout time.Duration `yaml:"step_timeout" env:"STEP_TIMEOUT"`
	// 整个工作流超时，0 不限制
	WorkflowTimeout time.Duration `yaml:"workflow_timeout" env:"WORKFLOW_TIMEOUT"`
	// 是否启用 Supervisor
	SupervisorEnabled bool `yaml:"supervisor_enabled" env:"SUPERVISOR_ENABLED"`
	// 低于该置信度的非 continue 校验决策降级为 continue
	SoftFailureThreshold float64 `yaml:"soft_failure_threshold" env:"SOFT_FAILURE_THRESHOLD"`
	// 输出中出现即视为逻辑失败的短语
	SoftFailureMarkers []string `yaml:"soft_failure_markers" env:"SOFT_FAILURE_MARKERS"`
	// 是否启用 handoff 检测
	HandoffEnabled bool `yaml:"handoff_enabled" env:"HANDOFF_ENABLED"`
}

// TransportConfig A2A 传输配置
type TransportConfig struct {
	// 单次 HTTP 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 传输层总尝试次数
	MaxAttempts int `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	// 指数退避区间
	MinWait time.Duration `yaml:"min_wait" env:"MIN_WAIT"`
	MaxWait time.Duration `yaml:"max_wait" env:"MAX_WAIT"`
	// 附加请求头，仅 YAML
	Headers map[string]string `yaml:"headers" env:"-"`
}

// DirectoryConfig Agent 目录配置
type DirectoryConfig struct {
	// 连续失败多少次后熔断
	FailureThreshold int `yaml:"failure_threshold" env:"FAILURE_THRESHOLD"`
	// 熔断持续时间
	OpenDuration time.Duration `yaml:"open_duration" env:"OPEN_DURATION"`
	// 健康检查并发
	ProbeConcurrency int `yaml:"probe_concurrency" env:"PROBE_CONCURRENCY"`
	// 单次健康检查超时
	ProbeTimeout time.Duration `yaml:"probe_timeout" env:"PROBE_TIMEOUT"`
	// 启动时通过代理卡补全 Agent 信息
	DiscoverOnStart bool `yaml:"discover_on_start" env:"DISCOVER_ON_START"`
	// 预置 Agent，仅 YAML
	Agents []AgentEntry `yaml:"agents" env:"-"`
}

// AgentEntry 预置 Agent
type AgentEntry struct {
	ID          string       `yaml:"id"`
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	URL         string       `yaml:"url"`
	Version     string       `yaml:"version"`
	Tags        []string     `yaml:"tags"`
	Skills      []SkillEntry `yaml:"skills"`
}

// SkillEntry 预置技能
type SkillEntry struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Tags        []string `yaml:"tags"`
}

// MemoryConfig 记忆存储配置
type MemoryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 后端: memory, redis, sql
	Backend string `yaml:"backend" env:"BACKEND"`
	// 最大条目数
	MaxEntries int `yaml:"max_entries" env:"MAX_ENTRIES"`
	// Redis 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	// 终态工作流是否写入记忆
	StoreWorkflows bool `yaml:"store_workflows" env:"STORE_WORKFLOWS"`
	// 注入到分析请求的相关记忆条数
	ContextLimit int `yaml:"context_limit" env:"CONTEXT_LIMIT"`
}

// HistoryConfig 工作流归档配置
type HistoryConfig struct {
	// 是否启用（需要 Database）
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 保留时长，0 永久保留
	Retention time.Duration `yaml:"retention" env:"RETENTION"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  DefaultEnvPrefix,
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置；文件不存在时保留默认值
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// time.Duration 按 "30s" 格式解析
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}

	switch strings.ToLower(c.Oracle.Provider) {
	case "", "none", "openai", "azure", "anthropic", "claude", "gemini":
	default:
		errs = append(errs, fmt.Sprintf("unknown oracle provider %q", c.Oracle.Provider))
	}
	if c.Oracle.Temperature < 0 || c.Oracle.Temperature > 2 {
		errs = append(errs, "oracle temperature must be between 0 and 2")
	}

	o := c.Orchestrator
	if o.MaxIterations <= 0 {
		errs = append(errs, "max_iterations must be positive")
	}
	if o.MaxRetries <= 0 {
		errs = append(errs, "max_retries must be positive")
	}
	if o.RetryBackoff < 0 || o.StepTimeout < 0 || o.WorkflowTimeout < 0 {
		errs = append(errs, "orchestrator durations must not be negative")
	}
	if o.ModifyLimit < 0 {
		errs = append(errs, "modify_limit must not be negative")
	}
	if o.SoftFailureThreshold < 0 || o.SoftFailureThreshold > 1 {
		errs = append(errs, "soft_failure_threshold must be between 0 and 1")
	}

	if c.Transport.MaxAttempts <= 0 {
		errs = append(errs, "transport max_attempts must be positive")
	}
	if c.Transport.MaxWait < c.Transport.MinWait {
		errs = append(errs, "transport max_wait must not be less than min_wait")
	}

	if c.Directory.FailureThreshold <= 0 {
		errs = append(errs, "directory failure_threshold must be positive")
	}
	for i, a := range c.Directory.Agents {
		if a.Name == "" || a.URL == "" {
			errs = append(errs, fmt.Sprintf("directory agent %d requires name and url", i))
		}
	}

	if c.Memory.Enabled {
		switch c.Memory.Backend {
		case "memory", "redis", "sql":
		default:
			errs = append(errs, fmt.Sprintf("unknown memory backend %q", c.Memory.Backend))
		}
		if c.Memory.MaxEntries <= 0 {
			errs = append(errs, "memory max_entries must be positive")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN 返回 gorm 连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
