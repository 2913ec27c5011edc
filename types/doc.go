// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供编排引擎共享的错误体系。

# 错误分类

  - 传输错误（TRANSPORT_ERROR / TIMEOUT）：连接、超时、连接池耗尽，传输层可重试
  - Agent 逻辑错误（AGENT_ERROR）：agent 已解析但返回失败负载，交由 Supervisor 决策
  - 解析错误（AGENT_NOT_FOUND）：对当前尝试致命，不重试
  - 计划错误（NO_PLAN）：不视为错误，回落到单 agent 处理
  - Oracle 错误（ORACLE_*）：总是被捕获并降级到确定性回退路径

Error 支持 errors.Is / errors.As，配合 AsError、IsRetryable、GetErrorCode 使用。
*/
package types
