package xbucket

import (
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"
)

// =============================================================================
// 预定义错误
// =============================================================================

// 预定义错误，使用 errors.Is 进行比较
var (
	// ErrRateLimited 表示令牌不足被限流
	ErrRateLimited = errors.New("xbucket: rate limited")

	// ErrStoreUnavailable 表示桶状态存储不可达
	ErrStoreUnavailable = errors.New("xbucket: store unavailable")

	// ErrUnknownService 表示服务未在配置中声明
	ErrUnknownService = errors.New("xbucket: unknown service")

	// ErrInvalidConfig 表示限流配置无效
	ErrInvalidConfig = errors.New("xbucket: invalid config")

	// ErrCostExceedsCapacity 表示单次请求成本超过桶容量，永远无法满足
	ErrCostExceedsCapacity = errors.New("xbucket: cost exceeds bucket capacity")

	// ErrNilClient 表示 Redis 客户端为 nil
	ErrNilClient = errors.New("xbucket: nil redis client")

	// ErrLimiterClosed 表示限流器已关闭
	ErrLimiterClosed = errors.New("xbucket: limiter closed")
)

// =============================================================================
// 限流错误类型
// =============================================================================

// LimitError 限流错误。
//
// 携带建议的重试等待时间，供调用方退避。
// 实现了 error 接口和 errors.Is 支持。
type LimitError struct {
	// Service 被限的服务
	Service string
	// RetryAfter 令牌补足到请求成本所需的时间，此前重试必然失败
	RetryAfter time.Duration
}

// Error 实现 error 接口
func (e *LimitError) Error() string {
	return fmt.Sprintf("xbucket: rate limited for service=%s, retry after %s", e.Service, e.RetryAfter)
}

// Is 支持 errors.Is 检查
func (e *LimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// Unwrap 返回底层错误
func (e *LimitError) Unwrap() error {
	return ErrRateLimited
}

// NewLimitError 从拒绝结果构造 LimitError
func NewLimitError(service string, res *Result) *LimitError {
	e := &LimitError{Service: service}
	if res != nil {
		e.RetryAfter = res.RetryAfter
	}
	return e
}

// =============================================================================
// 错误检查函数
// =============================================================================

// IsLimited 检查错误是否为限流
func IsLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// storeRelatedErrors 包含所有需要检查的存储相关错误
var storeRelatedErrors = []error{
	ErrStoreUnavailable,
	syscall.ECONNREFUSED,
	syscall.ECONNRESET,
	syscall.EPIPE,
	syscall.ETIMEDOUT,
	io.EOF,
	io.ErrUnexpectedEOF,
}

// IsStoreError 检查是否是存储（网络/Redis）相关错误。
//
// 使用类型断言和错误链检查，而不是字符串匹配。
func IsStoreError(err error) bool {
	if err == nil {
		return false
	}

	for _, target := range storeRelatedErrors {
		if errors.Is(err, target) {
			return true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}
