/*
Package circuitbreaker 提供无锁熔断器。

状态保存在 sync/atomic 字段中，Closed -> Open -> HalfOpen 的迁移通过
CompareAndSwap 完成，多个并发工作流命中同一个 agent 时不会争用全局锁。
agent 目录为每个 agent 持有一个实例，Oracle 保护层也使用它。
*/
package circuitbreaker
