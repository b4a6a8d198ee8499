package xadmit

import (
	"errors"

	"github.com/caseyos/gtmkit/pkg/business/xscore"
	"github.com/caseyos/gtmkit/pkg/resilience/xbucket"
	"github.com/caseyos/gtmkit/pkg/resilience/xquota"
)

// =============================================================================
// 错误分类
// =============================================================================

// 门面自有错误
var (
	// ErrStoreUnavailable 表示限流/配额存储不可达（含熔断器打开）
	ErrStoreUnavailable = errors.New("xadmit: store unavailable")

	// ErrInvalidRequest 表示请求参数无效
	ErrInvalidRequest = errors.New("xadmit: invalid request")

	// ErrNilDependency 表示必需的依赖为 nil
	ErrNilDependency = errors.New("xadmit: nil dependency")
)

// 下游组件的哨兵错误再导出，调用方只需依赖本包即可完成错误分类
var (
	// ErrRateLimited 令牌不足被限流，瞬时可重试
	ErrRateLimited = xbucket.ErrRateLimited

	// ErrQuotaExceeded 窗口配额耗尽，reset_at 之前不应重试
	ErrQuotaExceeded = xquota.ErrQuotaExceeded

	// ErrNoEligibleCandidates 没有合格候选。空结果本身不是错误，
	// 此哨兵供偏好 error 风格检查的调用方使用（见 Decision.Err）。
	ErrNoEligibleCandidates = xscore.ErrNoEligibleCandidates
)

// 富错误类型别名，携带 RetryAfter / Remaining / ResetAt 细节
type (
	// RateLimitedError 限流错误，携带 RetryAfter
	RateLimitedError = xbucket.LimitError

	// QuotaExceededError 配额错误，携带 Remaining 和 ResetAt
	QuotaExceededError = xquota.QuotaError
)

// IsRetryable 检查错误是否值得按 RetryAfter 退避后重试
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// isStoreFailure 检查错误是否是基础设施故障
func isStoreFailure(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, xquota.ErrStoreUnavailable) ||
		errors.Is(err, xbucket.ErrStoreUnavailable) ||
		xquota.IsStoreError(err) ||
		xbucket.IsStoreError(err)
}
