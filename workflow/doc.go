// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package workflow 实现多 Agent 工作流编排引擎。

# 概述

一次用户请求可能需要多个远程 Agent 依次协作。本包负责判断请求是否需要
多步执行、生成步骤计划、逐步调用 Agent 并在失败时选择恢复策略，同时允许
Agent 在输出中声明 handoff，把剩余工作动态交给另一个 Agent。

# 核心组件

  - Analyzer：先询问 Reasoning Oracle，Oracle 不可用或出错时回退到固定
    关键字模式（PatternAnalyzer），返回 nil 表示按单 Agent 处理
  - Executor：基于下标的顺序执行循环，步骤列表可在执行中增长，
    受 MaxIterations 约束
  - Supervisor：OracleSupervisor 与确定性的 PolicySupervisor，
    决策以 Decision 和类型（Continue/Retry/Modify/Fallback/Skip/Abort）表达
  - HandoffDetector：显式 handoff 块、短语门控、Oracle 确认、名称匹配

# Prompt 约定

链式步骤发送给 Agent 的文本固定为：

	[CONTEXT]
	<上一步输出，最多 5000 字符>

	[TASK]
	<任务>

Agent 可以在输出中嵌入 {"handoff": {"target": "...", "task": "..."}}
或 ```handoff 代码块来请求转交。

# 并发

同一工作流内的步骤严格串行；不同工作流可以在同一个 Executor 上并发执行，
运行期状态只保存在每次 Execute 调用内部。
*/
package workflow
