// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package tlsutil 集中提供 TLS 加固配置（TLS 1.2+，仅 AEAD 密码套件）。

三处使用：
  - agent/protocol/a2a.Client 通过 SecureHTTPClient 调用远端代理
  - internal/server.Manager.StartTLS 为 /metrics 端点启用 TLS
  - internal/cache.Manager 在 redis.tls 打开时加密 Redis 连接
*/
package tlsutil
