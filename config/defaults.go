// =============================================================================
// 📦 AgentRelay 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:       DefaultServerConfig(),
		Log:          DefaultLogConfig(),
		Telemetry:    DefaultTelemetryConfig(),
		Redis:        DefaultRedisConfig(),
		Database:     DefaultDatabaseConfig(),
		Oracle:       DefaultOracleConfig(),
		Orchestrator: DefaultOrchestratorConfig(),
		Transport:    DefaultTransportConfig(),
		Directory:    DefaultDirectoryConfig(),
		Memory:       DefaultMemoryConfig(),
		History:      DefaultHistoryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agentrelay",
		SampleRate:   0.1,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "agentrelay",
		Password:        "",
		Name:            "agentrelay.db",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultOracleConfig 返回默认 Oracle 配置；默认不启用 Oracle
func DefaultOracleConfig() OracleConfig {
	return OracleConfig{
		Provider:            "none",
		Temperature:         0.1,
		MaxTokens:           4096,
		Timeout:             60 * time.Second,
		RateLimit:           5,
		RateBurst:           10,
		BreakerThreshold:    5,
		BreakerResetTimeout: 30 * time.Second,
		CacheTTL:            10 * time.Minute,
		MaxPromptTokens:     12000,
	}
}

// DefaultOrchestratorConfig 返回默认编排配置
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		MaxIterations:        10,
		MaxRetries:           3,
		RetryBackoff:         1 * time.Second,
		ModifyLimit:          1,
		StepTimeout:          2 * time.Minute,
		WorkflowTimeout:      15 * time.Minute,
		SupervisorEnabled:    true,
		SoftFailureThreshold: 0,
		HandoffEnabled:       true,
	}
}

// DefaultTransportConfig 返回默认传输配置
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		Timeout:     60 * time.Second,
		MaxAttempts: 3,
		MinWait:     1 * time.Second,
		MaxWait:     4 * time.Second,
	}
}

// DefaultDirectoryConfig 返回默认目录配置
func DefaultDirectoryConfig() DirectoryConfig {
	return DirectoryConfig{
		FailureThreshold: 3,
		OpenDuration:     60 * time.Second,
		ProbeConcurrency: 8,
		ProbeTimeout:     10 * time.Second,
	}
}

// DefaultMemoryConfig 返回默认记忆配置
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		Enabled:        true,
		Backend:        "memory",
		MaxEntries:     1000,
		KeyPrefix:      "agentrelay:memory:",
		StoreWorkflows: true,
		ContextLimit:   3,
	}
}

// DefaultHistoryConfig 返回默认归档配置
func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{
		Enabled:   false,
		Retention: 30 * 24 * time.Hour,
	}
}
