// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package directory 维护远程 Agent 目录。

Registry 负责把 Agent ID 或名称解析为可调用端点，并跟踪每个 Agent 的可用性。
每个 Agent 持有一个无锁熔断器（internal/circuitbreaker），
连续失败达到阈值后在冷却期内不可用，冷却结束后只放行一次探测。

# 核心能力

  - ResolveByID / ResolveByName：ID 精确匹配，名称大小写不敏感匹配
  - IsAvailable：在线状态与熔断器共同决定
  - RecordSuccess / RecordFailure：调用结果上报，驱动熔断与延迟统计
  - Metrics：成功率、平均延迟、最近 100 次调用的 P95
  - Search：按关键字、标签、技能过滤
  - Probe：并发执行健康检查

Registry 可被多个工作流并发读写。
*/
package directory
