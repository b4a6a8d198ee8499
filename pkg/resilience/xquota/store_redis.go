package xquota

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
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
	//go:embed lua/consume.lua
	consumeLuaSource string

	//go:embed lua/release.lua
	releaseLuaSource string
)

// scripts 持有所有 Redis 脚本实例
type scripts struct {
	consume *redis.Script
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
			consume: redis.NewScript(consumeLuaSource),
			release: redis.NewScript(releaseLuaSource),
		}
	})
	return globalScripts
}

// =============================================================================
// Redis 配额存储实现
// =============================================================================

// 脚本状态码常量
const (
	scriptStatusOK       = 0
	scriptStatusExceeded = 1
)

// redisStore Store 接口的 Redis 实现
type redisStore struct {
	client  redis.UniversalClient
	opts    *options
	scripts *scripts
	closed  atomic.Bool
}

// newRedisStore 创建 Redis 存储
func newRedisStore(client redis.UniversalClient, opts *options) *redisStore {
	return &redisStore{
		client:  client,
		opts:    opts,
		scripts: getScripts(),
	}
}

// key 渲染单窗口计数器键。
// subject:service 放入 hash tag，保证同一主体服务的多窗口键落在
// 同一个 cluster slot 上，多键脚本才能原子执行。
func (s *redisStore) key(subject, service string, kind WindowKind, now time.Time) string {
	var b strings.Builder
	b.Grow(len(s.opts.config.KeyPrefix) + len(subject) + len(service) + 24)
	b.WriteString(s.opts.config.effectivePrefix())
	b.WriteByte('{')
	b.WriteString(subject)
	b.WriteByte(':')
	b.WriteString(service)
	b.WriteString("}:")
	b.WriteString(string(kind))
	b.WriteByte(':')
	b.WriteString(kind.label(kind.Start(now)))
	return b.String()
}

// plan 组装一次操作涉及的窗口键与上限
func (s *redisStore) plan(subject, service string) ([]WindowKind, ServiceLimit, error) {
	limit, ok := s.opts.config.Services[service]
	if !ok {
		return nil, ServiceLimit{}, fmt.Errorf("%w: %q", ErrUnknownService, service)
	}
	return limit.enforcedKinds(), limit, nil
}

// Check 检查 amount 是否可被消费，不产生任何写入
func (s *redisStore) Check(ctx context.Context, subject, service string, amount int64) (*Result, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}

	kinds, limit, err := s.plan(subject, service)
	if err != nil {
		return nil, err
	}

	now := s.opts.now()
	keys := make([]string, len(kinds))
	for i, kind := range kinds {
		keys[i] = s.key(subject, service, kind, now)
	}

	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("xquota: check: %w", err)
	}

	result := &Result{Allowed: true, Remaining: math.MaxInt64}
	for i, kind := range kinds {
		consumed := parseCounterValue(vals[i])
		cap := limit.limitFor(kind)
		remaining := max(cap-consumed, 0)
		resetAt := kind.Next(kind.Start(now))

		if consumed+amount > cap {
			return &Result{Allowed: false, Remaining: remaining, ResetAt: resetAt, Window: kind}, nil
		}
		if remaining < result.Remaining {
			result.Remaining = remaining
			result.ResetAt = resetAt
			result.Window = kind
		}
	}
	return result, nil
}

// Consume 原子消费 amount
func (s *redisStore) Consume(ctx context.Context, subject, service string, amount int64) (*Result, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidConfig)
	}

	kinds, limit, err := s.plan(subject, service)
	if err != nil {
		return nil, err
	}

	now := s.opts.now()
	ctx, span := xobs.Start(ctx, s.opts.observer, xobs.SpanOptions{
		Component: "xquota",
		Operation: "consume",
		Kind:      xobs.KindClient,
		Attrs: []xobs.Attr{
			xobs.String("service", service),
			xobs.Int64("amount", amount),
		},
	})

	keys := make([]string, len(kinds))
	args := make([]any, 0, 1+2*len(kinds))
	args = append(args, amount)
	for i, kind := range kinds {
		keys[i] = s.key(subject, service, kind, now)
		args = append(args, limit.limitFor(kind), int64(kind.TTL(now).Seconds()))
	}

	raw, err := s.scripts.consume.Run(ctx, s.client, keys, args...).Result()
	if err != nil {
		span.End(xobs.Result{Err: err})
		return nil, fmt.Errorf("xquota: consume: %w", err)
	}

	vals, err := convertScriptResult(raw, 3)
	if err != nil {
		span.End(xobs.Result{Err: err})
		return nil, err
	}

	kind := kinds[vals[1]-1]
	result := &Result{
		Allowed:   vals[0] == scriptStatusOK,
		Remaining: vals[2],
		ResetAt:   kind.Next(kind.Start(now)),
		Window:    kind,
	}

	s.opts.metrics.recordConsume(ctx, service, amount, result.Allowed, result.Window)
	s.logConsume(ctx, subject, service, result)
	span.End(xobs.Result{Attrs: []xobs.Attr{
		xobs.Bool("allowed", result.Allowed),
		xobs.Int64("remaining", result.Remaining),
	}})
	return result, nil
}

// Release 将 amount 退还到当前窗口
func (s *redisStore) Release(ctx context.Context, subject, service string, amount int64) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	if amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidConfig)
	}

	kinds, _, err := s.plan(subject, service)
	if err != nil {
		return err
	}

	now := s.opts.now()
	keys := make([]string, len(kinds))
	args := make([]any, 0, 1+len(kinds))
	args = append(args, amount)
	for i, kind := range kinds {
		keys[i] = s.key(subject, service, kind, now)
		args = append(args, int64(kind.TTL(now).Seconds()))
	}

	if err := s.scripts.release.Run(ctx, s.client, keys, args...).Err(); err != nil {
		return fmt.Errorf("xquota: release: %w", err)
	}
	return nil
}

// Query 返回当前各设限窗口的计数器快照
func (s *redisStore) Query(ctx context.Context, subject, service string) ([]Counter, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}

	kinds, limit, err := s.plan(subject, service)
	if err != nil {
		return nil, err
	}

	now := s.opts.now()
	keys := make([]string, len(kinds))
	for i, kind := range kinds {
		keys[i] = s.key(subject, service, kind, now)
	}

	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("xquota: query: %w", err)
	}

	counters := make([]Counter, len(kinds))
	for i, kind := range kinds {
		start := kind.Start(now)
		counters[i] = Counter{
			Subject:     subject,
			Service:     service,
			Window:      kind,
			WindowStart: start,
			Consumed:    parseCounterValue(vals[i]),
			Limit:       limit.limitFor(kind),
			ResetAt:     kind.Next(start),
		}
	}
	return counters, nil
}

// Reset 清零当前各窗口的计数器
func (s *redisStore) Reset(ctx context.Context, subject, service string) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}

	kinds, _, err := s.plan(subject, service)
	if err != nil {
		return err
	}

	now := s.opts.now()
	keys := make([]string, len(kinds))
	for i, kind := range kinds {
		keys[i] = s.key(subject, service, kind, now)
	}

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("xquota: reset: %w", err)
	}
	return nil
}

// Close 关闭存储
func (s *redisStore) Close(context.Context) error {
	s.closed.Store(true)
	return nil
}

// logConsume 记录消费日志
func (s *redisStore) logConsume(ctx context.Context, subject, service string, result *Result) {
	if s.opts.logger == nil {
		return
	}
	if result.Allowed {
		s.opts.logger.Debug(ctx, "quota consumed",
			slog.String("subject", subject),
			slog.String("service", service),
			slog.Int64("remaining", result.Remaining),
		)
		return
	}
	s.opts.logger.Warn(ctx, "quota exceeded",
		slog.String("subject", subject),
		slog.String("service", service),
		slog.String("window", string(result.Window)),
		slog.Time("reset_at", result.ResetAt),
	)
}

// parseCounterValue 解析 MGET 返回的计数器值，缺失键视为 0
func parseCounterValue(val any) int64 {
	switch v := val.(type) {
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0
		}
		return n
	case int64:
		return v
	default:
		return 0
	}
}

// convertScriptResult 将 Lua 脚本返回值安全转换为 []int64。
// 防止 Redis 返回非预期类型时 panic。
func convertScriptResult(val any, minLen int) ([]int64, error) {
	arr, ok := val.([]any)
	if !ok {
		return nil, fmt.Errorf("xquota: unexpected script result: %T", val)
	}
	if len(arr) < minLen {
		return nil, fmt.Errorf("xquota: unexpected script result: got %d elements, want >= %d", len(arr), minLen)
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
				return nil, fmt.Errorf("xquota: unexpected script result: non-integer element %g", n)
			}
			result[i] = int64(n)
		default:
			return nil, fmt.Errorf("xquota: unexpected script result: element %d is %T", i, v)
		}
	}
	return result, nil
}

// 确保 redisStore 实现了 Store 接口
var _ Store = (*redisStore)(nil)
