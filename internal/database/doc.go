// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 负责打开 gorm 数据库并管理连接池。

# 概述

Open 按 config.DatabaseConfig 选择方言（postgres、mysql，或纯 Go 的
sqlite），按 Limits 设置连接池后返回 Pool。共享记忆的 SQL 存储与
工作流归档都通过 Pool.DB() 复用同一个连接。

# 核心类型

  - Pool：持有 gorm.DB 与底层 sql.DB，提供 DB、Ping、Stats、Close。
  - Limits：最大打开与空闲连接数、连接生命周期与监控间隔。

Limits.Monitor 大于 0 时后台定时探活，并通过 WithStatsHook 上报连接数。
内存 sqlite 会被限制为单连接，否则每个连接看到的是不同的库。
*/
package database
