// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

// Package anthropic 基于 anthropic-sdk-go 实现 llm.Reasoner。
// Messages API 没有 JSON 模式，expectJSON 时通过 system 提示约束输出。
package anthropic
