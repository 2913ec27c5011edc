// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 agentrelay 测试的共享工具和辅助函数。

# 概述

testutil 包为整个项目的单元测试提供统一的辅助能力，
避免各包重复实现相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / CancelledContext，自动注册 Cleanup 防止泄漏
  - 退避替身: NoSleep 跳过执行器退避；SleepRecorder 记录退避时长
  - 断言工具: AssertErrorCode 校验 types.ErrorCode

# 子包

  - testutil/mocks: MockReasoner，按脚本返回 Oracle 响应，
    支持错误注入、不可用模拟与调用记录
  - testutil/fixtures: 预置 Agent 目录（Search / Docs / Analyst / Writer）

# 使用示例

	ctx := testutil.TestContext(t)
	oracle := mocks.NewMockReasoner().WithResponses(`{"action":"continue"}`)
	out, err := oracle.Complete(ctx, "prompt", true)
*/
package testutil
