// Package xadmit 提供准入与排序的统一门面。
//
// 一次 RequestAction 调用把限流、配额和评分组合成一个状态机：
//
//	CHECK_LIMITER → CHECK_QUOTA → RANK → COMMIT → DONE
//
// 带补偿回滚：配额检查失败或排序结果为空时，已获取的令牌被退还，
// 退还是幂等的且不会多退（桶以容量封顶）。配额消费（COMMIT）是最后
// 一个不可逆步骤——一个请求的副作用要么全部发生、要么全不发生。
//
// 失败分类（均可用 errors.Is 检查）：
//   - ErrRateLimited: 瞬时，按 RetryAfter 退避后可重试
//   - ErrQuotaExceeded: 窗口内不可恢复，reset_at 之前不应重试
//   - ErrStoreUnavailable: 基础设施故障，立即透传、不做隐式降级
//   - 空候选集不是错误：返回 Empty 标记的 Decision
//
// 存储调用被熔断器保护：存储宕机时快速失败而不是反复超时。
// 每个裁决可记入 Journal（内存或 MongoDB），日志失败不影响请求。
package xadmit
