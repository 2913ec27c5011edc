// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package a2a 实现 Agent-to-Agent JSON-RPC 协议的调用端与一个最小代理端。

# 调用端

Client.Send 向 <endpoint>/tasks/send 发送 SendMessage 请求，
代理返回非 200 或 -32601 时改用旧版 message/send。一次逻辑调用内的
X-Request-Id、JSON-RPC id 与 messageId 只生成一次，重试与降级共用。
传输层只对连接失败、超时与连接重置按指数退避重试。

响应按 result.message、result.task.status.message、result.artifacts、
result.status.message 的顺序解析，均为空时内容为 "Task completed."。

# 错误映射

  - 代理返回 JSON-RPC 错误或 failed 状态：AGENT_ERROR
  - 非 200：UPSTREAM_ERROR，附带 HTTP 状态码
  - 超时：TIMEOUT；调用方取消：CANCELED；其余连接错误：TRANSPORT_ERROR

Invoker 把 Client 适配为 workflow.Invoker，并向目录上报调用结果驱动熔断。
HealthCheck 与 directory.HealthChecker 签名一致，可直接用于 Registry.Probe。

# 代理端

Server 提供代理卡、/health 与 /tasks/send，用于本地联调与测试。
*/
package a2a
