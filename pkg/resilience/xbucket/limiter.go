package xbucket

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// =============================================================================
// 核心接口定义
// =============================================================================

// Limiter 令牌桶限流器接口。
//
// 实现必须是并发安全的；同一服务上的并发 TryAcquire 等价于某个
// 串行执行顺序（不丢更新）。
//
// TryAcquire 的返回契约：
//   - err == nil 时，返回的 *Result 必非 nil
//   - 令牌不足不是 error：返回 Result.Allowed == false 和 RetryAfter
//   - 永不阻塞、永不休眠
type Limiter interface {
	// TryAcquire 尝试获取 cost 个令牌。
	// 拒绝时 Result.RetryAfter = (cost - tokens) / refill_rate。
	TryAcquire(ctx context.Context, service string, cost int64) (*Result, error)

	// Release 将 cost 个令牌退还到桶中（补偿操作），不会超过桶容量。
	Release(ctx context.Context, service string, cost int64) error

	// Query 返回桶的当前状态快照（含惰性补充后的令牌数），不消耗令牌。
	Query(ctx context.Context, service string) (*State, error)

	// Close 释放限流器自有资源（不关闭注入的外部客户端）。
	Close(ctx context.Context) error
}

// =============================================================================
// 数据结构
// =============================================================================

// Result 令牌获取结果
type Result struct {
	// Allowed 是否允许
	Allowed bool

	// Remaining 操作后桶内剩余令牌数
	Remaining float64

	// RetryAfter 拒绝时令牌补足到请求成本所需的时间；允许时为 0
	RetryAfter time.Duration

	// Degraded 结果是否来自降级路径（FailOpen 放行或 FailLocal 本地桶）
	Degraded bool

	// Charged 是否实际从某个桶扣减了令牌。FailOpen 降级放行时为 false，
	// 这样的获取不可退还，否则会凭空多出令牌
	Charged bool
}

// State 令牌桶状态快照
type State struct {
	// Service 服务名
	Service string
	// Capacity 桶容量
	Capacity int64
	// Tokens 当前可用令牌数（已含惰性补充）
	Tokens float64
	// RefillRate 每秒补充的令牌数
	RefillRate float64
	// LastRefillAt 上次补充计算的时间
	LastRefillAt time.Time
}

// =============================================================================
// 工厂函数
// =============================================================================

// New 创建 Redis 后端的令牌桶限流器。
//
// 桶状态的读改写在服务端以单个 Lua 脚本原子执行，
// 支持多进程共享同一个桶；失败策略见 WithPolicy。
func New(rdb redis.UniversalClient, opts ...Option) (Limiter, error) {
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

	s := newRedisLimiter(rdb, cfg)
	if cfg.config.effectivePolicy() == FailLocal {
		s.fallback = newLocalLimiter(cfg)
	}
	return s, nil
}

// NewLocal 创建进程内的令牌桶限流器。
//
// 适用于单进程场景和测试；桶条目按最近使用保留，
// 被淘汰的桶在下次访问时以满桶重建。
func NewLocal(opts ...Option) (Limiter, error) {
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

	return newLocalLimiter(cfg), nil
}
