// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理 agentrelay 进程内 HTTP 端点的生命周期。

# 概述

`agentrelay run -serve` 用它暴露 /metrics 与 /health，`agentrelay mock-agent`
用它承载回显型 A2A 代理。Manager 封装 net/http.Server：Start 在后台
goroutine 中服务，WaitForShutdown 在收到 SIGINT/SIGTERM 或 ctx 结束后
按 ShutdownTimeout 排空请求。

# 核心类型

  - Manager：Start / StartTLS / Shutdown / WaitForShutdown / Errors / Addr / IsRunning
  - Config：监听地址、读写与空闲超时、请求头上限、优雅关闭超时
  - RequestHook：每个请求结束后回调 method、path、status 与耗时，
    组合根把它接到 metrics.Collector.RecordHTTPRequest

Addr 返回实际监听地址，监听 ":0" 时便于测试取得随机端口。
StartTLS 使用 tlsutil 的加固配置。
*/
package server
