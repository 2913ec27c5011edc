// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 migration 管理 agentrelay 持久化表的 Schema 版本，支持 PostgreSQL、
MySQL 与 SQLite，基于 golang-migrate 实现。

迁移文件内嵌在 migrations/<dialect>/ 下：

  - 000001_create_memory_entries：记忆条目与标签表
  - 000002_create_workflow_history：已完成工作流的归档表

表结构与 gorm AutoMigrate 生成的结果保持一致（含索引名），两种方式
可以互换使用。生产环境建议使用本包的显式迁移。

# 使用

	s, err := migration.FromConfig(cfg.Database)
	if err != nil {
		return err
	}
	defer s.Close()
	err = s.Up(ctx)

SQLite 方言使用 golang-migrate 的 sqlite3 驱动（需要 cgo）。
*/
package migration
