// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 缓存推理 Oracle 的结构化响应。

# 概述

Analyzer、Supervisor 与 HandoffDetector 请求的 JSON 决策在相同输入下
应当稳定。llm.Guard 以 prompt 的 SHA256 为键，把成功解析的响应在 TTL
内复用；多实例部署时使用 Redis 实现共享缓存，单进程使用内存实现。

# 核心接口

  - ResponseCache：Get / Set / Delete
  - NewRedisCache：基于 go-redis UniversalClient，键带前缀
  - NewMemoryCache：进程内实现，过期条目读取时清理
  - Key：对任意输入生成确定性的缓存键

# 使用方式

	c := cache.NewRedisCache(redisClient, "agentrelay:oracle:", logger)
	key, _ := cache.Key(provider, prompt)
	if v, ok, _ := c.Get(ctx, key); ok {
		return v, nil
	}
*/
package cache
