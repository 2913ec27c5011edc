// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 管理进程内唯一的 Redis 连接。

Manager 封装 go-redis 客户端，负责连接、探活与关闭。共享记忆的
Redis 存储和 Oracle 响应缓存通过 Client() 复用同一个连接池。
Config.Monitor 大于 0 时后台定时探活，并经 WithPoolHook 上报连接池状态。
TLS 开启时使用 tlsutil 的加固配置。
*/
package cache
