package xquota

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// =============================================================================
// 核心接口定义
// =============================================================================

// Store 配额存储接口。
//
// 实现必须是并发安全的；同一 (subject, service) 上的并发 Consume
// 等价于某个串行执行顺序（不丢更新、不双花）。
//
// Check/Consume 的返回契约：
//   - err == nil 时，返回的 *Result 必非 nil
//   - 配额耗尽不是 error：返回 Result.Allowed == false
type Store interface {
	// Check 检查 amount 是否可被消费，不产生任何写入。
	Check(ctx context.Context, subject, service string, amount int64) (*Result, error)

	// Consume 原子消费 amount：任一设限窗口超限则整体拒绝且无副作用。
	Consume(ctx context.Context, subject, service string, amount int64) (*Result, error)

	// Release 将 amount 退还到当前窗口（补偿操作），计数不会降到 0 以下。
	Release(ctx context.Context, subject, service string, amount int64) error

	// Query 返回当前各设限窗口的计数器快照，不消耗配额。
	Query(ctx context.Context, subject, service string) ([]Counter, error)

	// Reset 清零当前各窗口的计数器。
	Reset(ctx context.Context, subject, service string) error

	// Close 释放存储自有资源（不关闭注入的外部客户端）。
	Close(ctx context.Context) error
}

// =============================================================================
// 数据结构
// =============================================================================

// Result 配额检查/消费结果
type Result struct {
	// Allowed 是否允许
	Allowed bool

	// Remaining 各设限窗口中的最小剩余量（拒绝时为触发窗口的剩余量）
	Remaining int64

	// ResetAt 拒绝时为触发窗口的重置时间；允许时为最紧窗口的重置时间
	ResetAt time.Time

	// Window 决定 Remaining/ResetAt 的窗口
	Window WindowKind
}

// Counter 单窗口计数器快照
type Counter struct {
	// Subject 主体标识
	Subject string
	// Service 服务名
	Service string
	// Window 窗口种类
	Window WindowKind
	// WindowStart 当前窗口起点（UTC）
	WindowStart time.Time
	// Consumed 窗口内已消费量
	Consumed int64
	// Limit 窗口上限
	Limit int64
	// ResetAt 窗口重置时间
	ResetAt time.Time
}

// Remaining 返回窗口内剩余量
func (c Counter) Remaining() int64 {
	if r := c.Limit - c.Consumed; r > 0 {
		return r
	}
	return 0
}

// =============================================================================
// 工厂函数
// =============================================================================

// New 创建 Redis 后端的配额存储。
//
// 多窗口检查与递增在服务端以单个 Lua 脚本原子执行，
// 支持多进程共享同一份配额。
func New(rdb redis.UniversalClient, opts ...Option) (Store, error) {
	if rdb == nil {
		return nil, ErrNilClient
	}

	cfg := defaultOptions()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	metrics, err := newMetrics(cfg.meterProvider)
	if err != nil {
		return nil, err
	}
	cfg.metrics = metrics

	return newRedisStore(rdb, cfg), nil
}

// NewLocal 创建内存后端的配额存储。
//
// 适用于单进程场景和测试；配合 WithJanitor 可定期清扫滚动后的旧计数器。
func NewLocal(opts ...Option) (Store, error) {
	cfg := defaultOptions()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	metrics, err := newMetrics(cfg.meterProvider)
	if err != nil {
		return nil, err
	}
	cfg.metrics = metrics

	return newLocalStore(cfg), nil
}
