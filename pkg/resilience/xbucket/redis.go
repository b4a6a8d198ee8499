package xbucket

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/caseyos/gtmkit/pkg/observability/xobs"
)

// =============================================================================
// Lua 脚本嵌入
// =============================================================================

var (
	//go:embed lua/acquire.lua
	acquireLuaSource string

	//go:embed lua/release.lua
	releaseLuaSource string
)

// scripts 持有所有 Redis 脚本实例
type scripts struct {
	acquire *redis.Script
	release *redis.Script
}

var (
	globalScripts     *scripts
	globalScriptsOnce sync.Once
)

// getScripts 获取脚本实例（线程安全的单例）
func getScripts() *scripts {
	globalScriptsOnce.Do(func() {
		globalScripts = &scripts{
			acquire: redis.NewScript(acquireLuaSource),
			release: redis.NewScript(releaseLuaSource),
		}
	})
	return globalScripts
}

// =============================================================================
// Redis 令牌桶实现
// =============================================================================

// 脚本状态码常量
const (
	scriptStatusOK      = 0
	scriptStatusLimited = 1
)

// tokenScale 脚本返回令牌数的定点缩放因子。
// Lua 数值回传 Redis 时被截断成整数，令牌以微令牌为单位传输。
const tokenScale = 1e6

// redisLimiter Limiter 接口的 Redis 实现。
//
// fallback 仅在 FailLocal 策略下非 nil；存储不可达时降级到本地桶，
// 恢复后自动回到共享桶（本地桶状态可能与共享桶偏离，属降级期的已知代价）。
type redisLimiter struct {
	client   redis.UniversalClient
	opts     *options
	scripts  *scripts
	fallback *localLimiter
	closed   atomic.Bool
}

// newRedisLimiter 创建 Redis 限流器
func newRedisLimiter(client redis.UniversalClient, opts *options) *redisLimiter {
	return &redisLimiter{
		client:  client,
		opts:    opts,
		scripts: getScripts(),
	}
}

// key 渲染服务的桶状态键
func (l *redisLimiter) key(service string) string {
	return l.opts.config.effectivePrefix() + service
}

// plan 解析服务配置并验证成本
func (l *redisLimiter) plan(service string, cost int64) (Bucket, error) {
	if l.closed.Load() {
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

// ttlMillis 计算桶键的 TTL：两倍补满时间，下限 1 秒。
// 过期的桶在下次访问时以满桶重建。
func ttlMillis(cfg Bucket) int64 {
	full := float64(cfg.Capacity) / cfg.RefillRate * 1000
	return max(int64(math.Ceil(full))*2, 1000)
}

// TryAcquire 尝试获取 cost 个令牌，永不阻塞
func (l *redisLimiter) TryAcquire(ctx context.Context, service string, cost int64) (*Result, error) {
	cfg, err := l.plan(service, cost)
	if err != nil {
		return nil, err
	}

	ctx, span := xobs.Start(ctx, l.opts.observer, xobs.SpanOptions{
		Component: "xbucket",
		Operation: "try_acquire",
		Kind:      xobs.KindClient,
		Attrs: []xobs.Attr{
			xobs.String("service", service),
			xobs.Int64("cost", cost),
		},
	})

	now := l.opts.now()
	raw, err := l.scripts.acquire.Run(ctx, l.client,
		[]string{l.key(service)},
		cfg.Capacity,
		strconv.FormatFloat(cfg.RefillRate, 'f', -1, 64),
		cost,
		now.UnixMilli(),
		ttlMillis(cfg),
	).Result()
	if err != nil {
		span.End(xobs.Result{Err: err})
		return l.degradeAcquire(ctx, service, cost, err)
	}

	vals, err := convertScriptResult(raw, 3)
	if err != nil {
		span.End(xobs.Result{Err: err})
		return nil, err
	}

	result := &Result{
		Allowed:    vals[0] == scriptStatusOK,
		Remaining:  float64(vals[1]) / tokenScale,
		RetryAfter: time.Duration(vals[2]) * time.Millisecond,
		Charged:    vals[0] == scriptStatusOK,
	}

	l.opts.metrics.recordAcquire(ctx, service, cost, result)
	span.End(xobs.Result{Attrs: []xobs.Attr{
		xobs.Bool("allowed", result.Allowed),
		xobs.Float64("remaining", result.Remaining),
	}})
	return result, nil
}

// degradeAcquire 按失败策略处理存储错误
func (l *redisLimiter) degradeAcquire(ctx context.Context, service string, cost int64, cause error) (*Result, error) {
	switch l.opts.config.effectivePolicy() {
	case FailOpen:
		l.warnDegraded(ctx, service, "allowing request", cause)
		result := &Result{Allowed: true, Degraded: true}
		l.opts.metrics.recordAcquire(ctx, service, cost, result)
		return result, nil

	case FailLocal:
		l.warnDegraded(ctx, service, "using local bucket", cause)
		result, err := l.fallback.TryAcquire(ctx, service, cost)
		if err != nil {
			return nil, err
		}
		result.Degraded = true
		return result, nil

	default:
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, cause)
	}
}

// Release 将 cost 个令牌退还到桶中，不会超过桶容量
func (l *redisLimiter) Release(ctx context.Context, service string, cost int64) error {
	cfg, err := l.plan(service, cost)
	if err != nil {
		return err
	}

	err = l.scripts.release.Run(ctx, l.client,
		[]string{l.key(service)},
		cfg.Capacity,
		cost,
	).Err()
	if err == nil {
		return nil
	}

	switch l.opts.config.effectivePolicy() {
	case FailOpen:
		// FailOpen 放行的请求没有消耗共享桶令牌，退还失败可以安全忽略
		l.warnDegraded(ctx, service, "dropping token release", err)
		return nil
	case FailLocal:
		l.warnDegraded(ctx, service, "releasing to local bucket", err)
		return l.fallback.Release(ctx, service, cost)
	default:
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
}

// Query 返回桶的当前状态快照，不消耗令牌
func (l *redisLimiter) Query(ctx context.Context, service string) (*State, error) {
	cfg, err := l.plan(service, 1)
	if err != nil {
		return nil, err
	}

	vals, err := l.client.HMGet(ctx, l.key(service), "tokens", "stamp_ms").Result()
	if err != nil {
		return nil, fmt.Errorf("%w: query: %w", ErrStoreUnavailable, err)
	}

	now := l.opts.now()
	tokens := float64(cfg.Capacity)
	last := now
	if s, ok := vals[0].(string); ok {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			tokens = v
		}
	}
	if s, ok := vals[1].(string); ok {
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			last = time.UnixMilli(ms).UTC()
		}
	}

	// 快照也应用惰性补充，与 TryAcquire 看到的口径一致
	if elapsed := now.Sub(last).Seconds(); elapsed > 0 {
		tokens = min(float64(cfg.Capacity), tokens+elapsed*cfg.RefillRate)
		last = now
	}

	return &State{
		Service:      service,
		Capacity:     cfg.Capacity,
		Tokens:       tokens,
		RefillRate:   cfg.RefillRate,
		LastRefillAt: last,
	}, nil
}

// Close 关闭限流器
func (l *redisLimiter) Close(ctx context.Context) error {
	l.closed.Store(true)
	if l.fallback != nil {
		return l.fallback.Close(ctx)
	}
	return nil
}

// warnDegraded 记录降级告警日志
func (l *redisLimiter) warnDegraded(ctx context.Context, service, action string, cause error) {
	if l.opts.logger == nil {
		return
	}
	l.opts.logger.Warn(ctx, "bucket store unreachable: "+action,
		slog.String("service", service),
		slog.String("policy", string(l.opts.config.effectivePolicy())),
		slog.String("error", cause.Error()),
	)
}

// convertScriptResult 将 Lua 脚本返回值安全转换为 []int64。
// 防止 Redis 返回非预期类型时 panic。
func convertScriptResult(val any, minLen int) ([]int64, error) {
	arr, ok := val.([]any)
	if !ok {
		return nil, fmt.Errorf("xbucket: unexpected script result: %T", val)
	}
	if len(arr) < minLen {
		return nil, fmt.Errorf("xbucket: unexpected script result: got %d elements, want >= %d", len(arr), minLen)
	}

	result := make([]int64, len(arr))
	for i, v := range arr {
		switch n := v.(type) {
		case int64:
			result[i] = n
		case int:
			result[i] = int64(n)
		case float64:
			if n != math.Trunc(n) {
				return nil, fmt.Errorf("xbucket: unexpected script result: non-integer element %g", n)
			}
			result[i] = int64(n)
		default:
			return nil, fmt.Errorf("xbucket: unexpected script result: element %d is %T", i, v)
		}
	}
	return result, nil
}

// 确保 redisLimiter 实现了 Limiter 接口
var _ Limiter = (*redisLimiter)(nil)
