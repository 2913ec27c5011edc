// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的编排指标采集。

# 概述

Collector 通过 promauto 注册全部指标，按 namespace（默认 agentrelay）
隔离。其方法签名与各组件的回调一致，组装时直接传入即可：

  - workflow.Observer：工作流、步骤、交接与编排决策
  - llm.GuardConfig.OnCall：Oracle 调用结果与耗时
  - a2a.WithRequestHook：A2A 请求结果与耗时
  - directory.WithStateChangeHook：逐代理熔断器状态变化
  - memory.WithCountHook：共享记忆条目数

另有 HTTP 请求与数据库连接池指标，供 serve 模式使用。
Handler 返回对应 registry 的 /metrics 处理器。
*/
package metrics
