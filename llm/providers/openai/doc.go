// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

// Package openai 基于 openai-go 实现 llm.Reasoner，同时支持 Azure OpenAI 部署。
// expectJSON 请求使用 response_format=json_object。
package openai
