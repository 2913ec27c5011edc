// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
包 providers 收纳推理 Oracle 的各家 SDK 适配。

子包 openai、anthropic、gemini 都实现 llm.Reasoner，共享本包的 [Config]。
所有适配都关闭 SDK 自带的重试，由 llm.Guard 统一负责熔断与限流。
*/
package providers
