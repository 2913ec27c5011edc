// Package config 提供 AgentRelay 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量（前缀 AGENTRELAY）的顺序叠加，
// 最后运行注册的验证器。Map 与结构体切片（如预置 Agent 列表）只能通过 YAML 设置。
package config
