package xquota

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
	// ErrQuotaExceeded 表示窗口配额已耗尽
	ErrQuotaExceeded = errors.New("xquota: quota exceeded")

	// ErrStoreUnavailable 表示配额存储不可达
	ErrStoreUnavailable = errors.New("xquota: store unavailable")

	// ErrUnknownService 表示服务未在配置中声明
	ErrUnknownService = errors.New("xquota: unknown service")

	// ErrInvalidConfig 表示配额配置无效
	ErrInvalidConfig = errors.New("xquota: invalid config")

	// ErrNilClient 表示 Redis 客户端为 nil
	ErrNilClient = errors.New("xquota: nil redis client")

	// ErrStoreClosed 表示存储已关闭
	ErrStoreClosed = errors.New("xquota: store closed")
)

// =============================================================================
// 配额错误类型
// =============================================================================

// QuotaError 配额耗尽错误。
//
// 携带拒绝时的剩余量和窗口重置时间，供调用方决定何时重试。
// 实现了 error 接口和 errors.Is 支持。
type QuotaError struct {
	// Subject 被限的主体
	Subject string
	// Service 被限的服务
	Service string
	// Window 触发拒绝的窗口
	Window WindowKind
	// Remaining 拒绝时刻窗口内的剩余量
	Remaining int64
	// ResetAt 窗口重置时间，此前不应重试
	ResetAt time.Time
}

// Error 实现 error 接口
func (e *QuotaError) Error() string {
	return fmt.Sprintf("xquota: quota exceeded for subject=%s service=%s window=%s, remaining=%d, resets at %s",
		e.Subject, e.Service, e.Window, e.Remaining, e.ResetAt.UTC().Format(time.RFC3339))
}

// Is 支持 errors.Is 检查
func (e *QuotaError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// Unwrap 返回底层错误
func (e *QuotaError) Unwrap() error {
	return ErrQuotaExceeded
}

// NewQuotaError 从拒绝结果构造 QuotaError
func NewQuotaError(subject, service string, res *Result) *QuotaError {
	e := &QuotaError{Subject: subject, Service: service}
	if res != nil {
		e.Window = res.Window
		e.Remaining = res.Remaining
		e.ResetAt = res.ResetAt
	}
	return e
}

// =============================================================================
// 错误检查函数
// =============================================================================

// IsExceeded 检查错误是否为配额耗尽
func IsExceeded(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
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
