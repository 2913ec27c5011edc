// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

// Package gemini 基于 google.golang.org/genai 实现 llm.Reasoner。
// expectJSON 请求设置 ResponseMIMEType=application/json。
package gemini
