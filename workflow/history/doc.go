// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

// Package history 基于 gorm 归档终态工作流。
//
// Store 实现 workflow.Recorder，通过 workflow.WithRecorders 挂到执行器上；
// 归档失败只记录日志，不影响工作流结果。每条记录保存摘要列与完整 JSON 快照，
// 表结构由 internal/migration 管理。
package history
