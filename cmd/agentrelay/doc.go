// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 agentrelay 命令行入口。

# 概述

cmd/agentrelay 是多代理工作流编排引擎的组合根：按配置依次构建日志、
遥测、指标、代理目录、A2A 传输、推理 Oracle、记忆存储与工作流归档，
再把它们注入 Analyzer、Supervisor、HandoffDetector 与 Executor。
进程内没有全局单例，所有共享对象都由 App 持有并显式传递。

# 子命令

  - run       ：执行一次请求：分析 → 执行 → 输出报告；-serve 时继续暴露 /metrics 与 /health
  - agents    ：列出代理目录及熔断状态、调用统计
  - migrate   ：数据库迁移（up、down、down-all、steps、force、version、status、info）
  - mock-agent：启动一个回显型 A2A 代理，便于本地联调
  - version   ：显示构建信息

# 中间件

HTTP 端点使用 Recovery、RequestID、SecurityHeaders、OTelTracing、
RequestLogger 串联；请求指标由 internal/server 的 RequestHook 上报。
Version、BuildTime、GitCommit 通过 ldflags 注入。
*/
package main
