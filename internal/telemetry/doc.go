// Package telemetry 封装 OpenTelemetry SDK 初始化，为 agentrelay
// 提供全局 TracerProvider 与 MeterProvider。遥测关闭时保持 noop，
// 不连接任何外部服务。
package telemetry
