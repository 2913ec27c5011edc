// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 memory 提供跨工作流共享的记忆存储。

# 概述

[Memory] 保存对话片段、工作流结果、产物与事实，并按查询文本做确定性
相关度检索，无需外部向量服务。执行器通过 workflow.Recorder 把终态工作流
写入记忆；分析前通过 [Memory.GetRelevantContext] 取回相关上下文。

# 检索评分

  - 查询整体出现在内容中 +0.5，出现在摘要中 +0.3
  - 每个查询词出现在内容中 +0.1，出现在摘要中 +0.05
  - 文本有命中时叠加新近度分：一周内线性衰减，上限 0.2
  - 结果按分数降序，同分按插入顺序；空查询为浏览模式，按新近度返回

# 容量与淘汰

写入超过 MaxEntries（默认 1000）时按插入顺序淘汰最旧条目，
条目与类型、标签索引在同一原子操作中移除。

# 存储后端

  - [InMemoryStore]：进程内，默认
  - [RedisStore]：JSON 键 + ZSET 索引，WATCH/MULTI 事务
  - [SQLStore]：gorm，memory_entries 与 memory_entry_tags 两张表
*/
package memory
