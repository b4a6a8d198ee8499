package xbucket

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// localLimiter Limiter 接口的进程内实现。
//
// 桶条目放在一个按最近使用淘汰的缓存里：长期不活跃的服务桶被淘汰后
// 在下次访问时以满桶重建，这与令牌桶"状态丢失等价于满桶"的性质一致，
// 因此淘汰不影响正确性，只是放弃了对突发历史的记忆。
type localLimiter struct {
	opts    *options
	mu      sync.Mutex // 仅保护 buckets 的取取/创建
	buckets *expirable.LRU[string, *bucketState]
	closed  bool
}

// bucketState 单个服务的桶状态
type bucketState struct {
	mu     sync.Mutex
	tokens float64
	last   time.Time
}

// newLocalLimiter 创建进程内限流器
func newLocalLimiter(opts *options) *localLimiter {
	return &localLimiter{
		opts:    opts,
		buckets: expirable.NewLRU[string, *bucketState](opts.localCap, nil, 0),
	}
}

// bucket 获取或创建服务对应的桶，新桶以满容量初始化
func (l *localLimiter) bucket(service string, capacity int64) *bucketState {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets.Get(service); ok {
		return b
	}
	b := &bucketState{
		tokens: float64(capacity),
		last:   l.opts.now(),
	}
	l.buckets.Add(service, b)
	return b
}

// refillLocked 惰性补充令牌。调用方必须持有 bucketState.mu。
func (b *bucketState) refillLocked(cfg Bucket, now time.Time) {
	elapsed := now.Sub(b.last).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens = min(float64(cfg.Capacity), b.tokens+elapsed*cfg.RefillRate)
	b.last = now
}

// plan 解析服务配置并验证成本
func (l *localLimiter) plan(service string, cost int64) (Bucket, error) {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return Bucket{}, ErrLimiterClosed
	}

	cfg, ok := l.opts.config.Services[service]
	if !ok {
		return Bucket{}, fmt.Errorf("%w: %q", ErrUnknownService, service)
	}
	if cost <= 0 {
		return Bucket{}, fmt.Errorf("%w: cost must be positive", ErrInvalidConfig)
	}
	if cost > cfg.Capacity {
		return Bucket{}, fmt.Errorf("%w: cost=%d capacity=%d", ErrCostExceedsCapacity, cost, cfg.Capacity)
	}
	return cfg, nil
}

// TryAcquire 尝试获取 cost 个令牌，永不阻塞
func (l *localLimiter) TryAcquire(ctx context.Context, service string, cost int64) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg, err := l.plan(service, cost)
	if err != nil {
		return nil, err
	}

	b := l.bucket(service, cfg.Capacity)
	b.mu.Lock()
	b.refillLocked(cfg, l.opts.now())

	var result *Result
	if b.tokens >= float64(cost) {
		b.tokens -= float64(cost)
		result = &Result{Allowed: true, Remaining: b.tokens, Charged: true}
	} else {
		retryAfter := time.Duration((float64(cost) - b.tokens) / cfg.RefillRate * float64(time.Second))
		result = &Result{Allowed: false, Remaining: b.tokens, RetryAfter: retryAfter}
	}
	b.mu.Unlock()

	l.opts.metrics.recordAcquire(ctx, service, cost, result)
	return result, nil
}

// Release 将 cost 个令牌退还到桶中，不会超过桶容量
func (l *localLimiter) Release(ctx context.Context, service string, cost int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cfg, err := l.plan(service, cost)
	if err != nil {
		return err
	}

	b := l.bucket(service, cfg.Capacity)
	b.mu.Lock()
	b.refillLocked(cfg, l.opts.now())
	b.tokens = min(float64(cfg.Capacity), b.tokens+float64(cost))
	b.mu.Unlock()
	return nil
}

// Query 返回桶的当前状态快照，不消耗令牌
func (l *localLimiter) Query(ctx context.Context, service string) (*State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg, err := l.plan(service, 1)
	if err != nil {
		return nil, err
	}

	b := l.bucket(service, cfg.Capacity)
	b.mu.Lock()
	b.refillLocked(cfg, l.opts.now())
	state := &State{
		Service:      service,
		Capacity:     cfg.Capacity,
		Tokens:       b.tokens,
		RefillRate:   cfg.RefillRate,
		LastRefillAt: b.last,
	}
	b.mu.Unlock()
	return state, nil
}

// Close 关闭限流器并清空桶缓存
func (l *localLimiter) Close(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.buckets.Purge()
	return nil
}

// 确保 localLimiter 实现了 Limiter 接口
var _ Limiter = (*localLimiter)(nil)
