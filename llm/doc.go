// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 提供编排引擎使用的推理 Oracle 抽象。

# 概述

规划、结果校验与 handoff 识别都可以咨询一个外部的自然语言推理服务，
但它始终是可选的：每个调用点都有确定性的非 Oracle 回退路径。
[Reasoner] 是唯一的接入接口，[ErrUnavailable] 表示“没有可用的 Oracle”，
调用方据此走回退分支，而不是当作异常处理。

# 核心类型

  - [Reasoner]：Complete(ctx, prompt, expectJSON) / Available / Name
  - [Guard]：为 Reasoner 叠加限流、熔断、响应缓存、singleflight 合并与 prompt token 预算
  - [ExtractJSON] / [DecodeJSON]：从模型输出中剥离代码块与多余文本并解码

# Provider

providers/openai、providers/anthropic、providers/gemini 分别基于官方 SDK 实现
[Reasoner]；配置为 none 或缺少 API Key 时不创建 Reasoner。
*/
package llm
