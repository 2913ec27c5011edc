// Package factory 提供推理 Oracle 的集中式工厂，
// 通过名称映射创建 llm.Reasoner 实例。
package factory
