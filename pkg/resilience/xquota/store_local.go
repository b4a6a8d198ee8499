package xquota

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// localStore Store 接口的内存实现。
//
// 每个 (subject, service) 一个条目，条目内持有各窗口的计数器和一把
// 互斥锁：多窗口检查加累加在锁内完成，与 Redis 后端的 Lua 脚本等价。
// 不相关条目之间无锁竞争。
type localStore struct {
	opts    *options
	mu      sync.Mutex // 仅保护 entries 映射本身
	entries map[string]*localEntry
	cron    *cron.Cron
	closed  bool
}

// localEntry 单个 (subject, service) 的全部窗口计数器
type localEntry struct {
	mu       sync.Mutex
	counters map[WindowKind]*counterState
}

// counterState 单窗口计数器状态
type counterState struct {
	windowStart time.Time
	consumed    int64
}

// newLocalStore 创建内存存储，按需启动 janitor
func newLocalStore(opts *options) *localStore {
	s := &localStore{
		opts:    opts,
		entries: make(map[string]*localEntry),
	}

	if opts.janitorSpec != "" {
		s.cron = cron.New(cron.WithLocation(time.UTC))
		// cron 表达式在 options.validate 之后仍可能无效，此处忽略错误会
		// 导致清扫静默缺失，所以转为启动日志告警。
		if _, err := s.cron.AddFunc(opts.janitorSpec, s.sweep); err != nil {
			if opts.logger != nil {
				opts.logger.Warn(context.Background(), "xquota janitor disabled: bad cron spec",
					slog.String("spec", opts.janitorSpec),
					slog.String("error", err.Error()),
				)
			}
		} else {
			s.cron.Start()
		}
	}

	return s
}

// entry 获取或创建 (subject, service) 条目
func (s *localStore) entry(subject, service string) *localEntry {
	key := subject + "\x00" + service

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		e = &localEntry{counters: make(map[WindowKind]*counterState)}
		s.entries[key] = e
	}
	return e
}

// counter 获取条目内指定窗口的计数器，滚动检查在此惰性执行。
// 调用方必须持有 entry.mu。
func (e *localEntry) counter(kind WindowKind, now time.Time) *counterState {
	start := kind.Start(now)
	c, ok := e.counters[kind]
	if !ok {
		c = &counterState{windowStart: start}
		e.counters[kind] = c
		return c
	}
	// 窗口已滚动：清零并换新起点。多次读取只会触发一次逻辑清零，
	// 因为清零后 windowStart 即为当前窗口。
	if !c.windowStart.Equal(start) {
		c.windowStart = start
		c.consumed = 0
	}
	return c
}

// checkLocked 在锁内执行多窗口检查，返回拒绝窗口或最紧窗口。
// 调用方必须持有 entry.mu。
func (s *localStore) checkLocked(e *localEntry, limit ServiceLimit, kinds []WindowKind, amount int64, now time.Time) *Result {
	result := &Result{Allowed: true, Remaining: math.MaxInt64}
	for _, kind := range kinds {
		c := e.counter(kind, now)
		cap := limit.limitFor(kind)
		remaining := max(cap-c.consumed, 0)
		resetAt := kind.Next(c.windowStart)

		if c.consumed+amount > cap {
			return &Result{Allowed: false, Remaining: remaining, ResetAt: resetAt, Window: kind}
		}
		if remaining < result.Remaining {
			result.Remaining = remaining
			result.ResetAt = resetAt
			result.Window = kind
		}
	}
	return result
}

// Check 检查 amount 是否可被消费，不产生任何写入
func (s *localStore) Check(ctx context.Context, subject, service string, amount int64) (*Result, error) {
	if err := s.guard(ctx); err != nil {
		return nil, err
	}

	limit, ok := s.opts.config.Services[service]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownService, service)
	}

	e := s.entry(subject, service)
	e.mu.Lock()
	defer e.mu.Unlock()
	return s.checkLocked(e, limit, limit.enforcedKinds(), amount, s.opts.now()), nil
}

// Consume 原子消费 amount
func (s *localStore) Consume(ctx context.Context, subject, service string, amount int64) (*Result, error) {
	if err := s.guard(ctx); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidConfig)
	}

	limit, ok := s.opts.config.Services[service]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownService, service)
	}
	kinds := limit.enforcedKinds()
	now := s.opts.now()

	e := s.entry(subject, service)
	e.mu.Lock()
	result := s.checkLocked(e, limit, kinds, amount, now)
	if result.Allowed {
		for _, kind := range kinds {
			e.counter(kind, now).consumed += amount
		}
		result.Remaining -= amount
	}
	e.mu.Unlock()

	s.opts.metrics.recordConsume(ctx, service, amount, result.Allowed, result.Window)
	return result, nil
}

// Release 将 amount 退还到当前窗口，计数不会降到 0 以下
func (s *localStore) Release(ctx context.Context, subject, service string, amount int64) error {
	if err := s.guard(ctx); err != nil {
		return err
	}
	if amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidConfig)
	}

	limit, ok := s.opts.config.Services[service]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownService, service)
	}
	now := s.opts.now()

	e := s.entry(subject, service)
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, kind := range limit.enforcedKinds() {
		c := e.counter(kind, now)
		c.consumed = max(c.consumed-amount, 0)
	}
	return nil
}

// Query 返回当前各设限窗口的计数器快照
func (s *localStore) Query(ctx context.Context, subject, service string) ([]Counter, error) {
	if err := s.guard(ctx); err != nil {
		return nil, err
	}

	limit, ok := s.opts.config.Services[service]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownService, service)
	}
	kinds := limit.enforcedKinds()
	now := s.opts.now()

	e := s.entry(subject, service)
	e.mu.Lock()
	defer e.mu.Unlock()

	counters := make([]Counter, len(kinds))
	for i, kind := range kinds {
		c := e.counter(kind, now)
		counters[i] = Counter{
			Subject:     subject,
			Service:     service,
			Window:      kind,
			WindowStart: c.windowStart,
			Consumed:    c.consumed,
			Limit:       limit.limitFor(kind),
			ResetAt:     kind.Next(c.windowStart),
		}
	}
	return counters, nil
}

// Reset 清零当前各窗口的计数器
func (s *localStore) Reset(ctx context.Context, subject, service string) error {
	if err := s.guard(ctx); err != nil {
		return err
	}

	e := s.entry(subject, service)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.counters = make(map[WindowKind]*counterState)
	return nil
}

// Close 关闭存储并停止 janitor
func (s *localStore) Close(context.Context) error {
	s.mu.Lock()
	s.closed = true
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
	return nil
}

// guard 统一处理关闭状态和 ctx 取消
func (s *localStore) guard(ctx context.Context) error {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// sweep 清扫窗口已滚动两次的条目（所有计数器都过期才删除）
func (s *localStore) sweep() {
	now := s.opts.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, e := range s.entries {
		e.mu.Lock()
		stale := len(e.counters) > 0
		for kind, c := range e.counters {
			if now.Before(kind.Next(kind.Next(c.windowStart))) {
				stale = false
				break
			}
		}
		e.mu.Unlock()

		if stale {
			delete(s.entries, key)
		}
	}
}

// 确保 localStore 实现了 Store 接口
var _ Store = (*localStore)(nil)
