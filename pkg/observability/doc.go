// Package observability 提供可观测性相关的子包。
//
// 子包列表：
//   - xobs: 统一可观测性接口（结构化日志、跨度、OTel 指标）
//
// 设计原则：
//   - 遵循 OpenTelemetry 语义规范
//   - 组件通过注入 Logger/Observer 接口上报，不直接依赖具体后端
package observability
