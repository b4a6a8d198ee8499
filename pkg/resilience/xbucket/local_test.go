//nolint:errcheck // 测试文件中的错误处理简化
package xbucket

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// testClock 可推进的测试时钟
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(start time.Time) *testClock {
	return &testClock{now: start}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newLocalForTest(t *testing.T, bucket Bucket, opts ...Option) Limiter {
	t.Helper()
	opts = append([]Option{WithService("email_send", bucket)}, opts...)
	limiter, err := NewLocal(opts...)
	if err != nil {
		t.Fatalf("failed to create local limiter: %v", err)
	}
	t.Cleanup(func() { limiter.Close(context.Background()) })
	return limiter
}

func TestLocalLimiter_BurstThenDeny(t *testing.T) {
	clock := newTestClock(time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC))
	limiter := newLocalForTest(t, Bucket{Capacity: 10, RefillRate: 1}, withClock(clock.Now))
	ctx := context.Background()

	// 满桶允许连续 10 次突发
	for i := 0; i < 10; i++ {
		res, err := limiter.TryAcquire(ctx, "email_send", 1)
		if err != nil {
			t.Fatalf("acquire %d failed: %v", i, err)
		}
		if !res.Allowed {
			t.Fatalf("acquire %d should be allowed", i)
		}
	}

	// 第 11 次拒绝，retry_after = (1 - 0) / 1 = 1s
	res, err := limiter.TryAcquire(ctx, "email_send", 1)
	if err != nil {
		t.Fatalf("TryAcquire failed: %v", err)
	}
	if res.Allowed {
		t.Fatal("11th acquire should be denied")
	}
	if res.RetryAfter != time.Second {
		t.Errorf("expected retry after 1s, got %s", res.RetryAfter)
	}

	// 等 2 秒后补充 2 个令牌，获取 1 个后剩 1 个
	clock.Advance(2 * time.Second)
	res, err = limiter.TryAcquire(ctx, "email_send", 1)
	if err != nil || !res.Allowed {
		t.Fatalf("acquire after refill should pass: err=%v", err)
	}
	if math.Abs(res.Remaining-1) > 1e-9 {
		t.Errorf("expected remaining 1, got %g", res.Remaining)
	}
}

func TestLocalLimiter_RetryAfterMath(t *testing.T) {
	clock := newTestClock(time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC))
	limiter := newLocalForTest(t, Bucket{Capacity: 10, RefillRate: 2}, withClock(clock.Now))
	ctx := context.Background()

	limiter.TryAcquire(ctx, "email_send", 10)

	// tokens=0, cost=5, rate=2 → retry_after = 2.5s
	res, err := limiter.TryAcquire(ctx, "email_send", 5)
	if err != nil {
		t.Fatalf("TryAcquire failed: %v", err)
	}
	if res.Allowed {
		t.Fatal("should be denied")
	}
	if want := 2500 * time.Millisecond; res.RetryAfter != want {
		t.Errorf("expected retry after %s, got %s", want, res.RetryAfter)
	}
}

func TestLocalLimiter_Boundedness(t *testing.T) {
	clock := newTestClock(time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC))
	limiter := newLocalForTest(t, Bucket{Capacity: 5, RefillRate: 10}, withClock(clock.Now))
	ctx := context.Background()

	// 长时间空闲后补充不超过容量
	clock.Advance(time.Hour)
	state, err := limiter.Query(ctx, "email_send")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if state.Tokens != 5 {
		t.Errorf("tokens must be capped at capacity, got %g", state.Tokens)
	}

	// 任意获取/等待序列后 0 <= tokens <= capacity
	steps := []struct {
		advance time.Duration
		cost    int64
	}{
		{0, 3}, {100 * time.Millisecond, 2}, {time.Second, 5},
		{0, 1}, {10 * time.Second, 4}, {50 * time.Millisecond, 2},
	}
	for i, step := range steps {
		clock.Advance(step.advance)
		limiter.TryAcquire(ctx, "email_send", step.cost)

		state, _ := limiter.Query(ctx, "email_send")
		if state.Tokens < 0 || state.Tokens > float64(state.Capacity) {
			t.Fatalf("step %d: tokens %g out of [0, %d]", i, state.Tokens, state.Capacity)
		}
	}
}

func TestLocalLimiter_ReleaseCappedAtCapacity(t *testing.T) {
	clock := newTestClock(time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC))
	limiter := newLocalForTest(t, Bucket{Capacity: 10, RefillRate: 1}, withClock(clock.Now))
	ctx := context.Background()

	limiter.TryAcquire(ctx, "email_send", 2)
	if err := limiter.Release(ctx, "email_send", 5); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	state, _ := limiter.Query(ctx, "email_send")
	if state.Tokens != 10 {
		t.Errorf("release must cap at capacity, got %g", state.Tokens)
	}
}

func TestLocalLimiter_CompensationNetZero(t *testing.T) {
	clock := newTestClock(time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC))
	limiter := newLocalForTest(t, Bucket{Capacity: 10, RefillRate: 1}, withClock(clock.Now))
	ctx := context.Background()

	limiter.TryAcquire(ctx, "email_send", 4)
	before, _ := limiter.Query(ctx, "email_send")

	limiter.TryAcquire(ctx, "email_send", 3)
	limiter.Release(ctx, "email_send", 3)

	after, _ := limiter.Query(ctx, "email_send")
	if math.Abs(before.Tokens-after.Tokens) > 1e-9 {
		t.Errorf("acquire+release must be net zero: before=%g after=%g", before.Tokens, after.Tokens)
	}
}

func TestLocalLimiter_Concurrency(t *testing.T) {
	clock := newTestClock(time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC))
	limiter := newLocalForTest(t, Bucket{Capacity: 50, RefillRate: 0.001}, withClock(clock.Now))
	ctx := context.Background()

	var succeeded atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := limiter.TryAcquire(ctx, "email_send", 1)
			if err == nil && res.Allowed {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	// 时钟固定，无补充：恰好容量个成功
	if got := succeeded.Load(); got != 50 {
		t.Errorf("expected exactly 50 successes, got %d", got)
	}
}

func TestLocalLimiter_Errors(t *testing.T) {
	limiter := newLocalForTest(t, Bucket{Capacity: 10, RefillRate: 1})
	ctx := context.Background()

	if _, err := limiter.TryAcquire(ctx, "mystery", 1); !errors.Is(err, ErrUnknownService) {
		t.Errorf("expected ErrUnknownService, got %v", err)
	}
	if _, err := limiter.TryAcquire(ctx, "email_send", 0); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for zero cost, got %v", err)
	}
	if _, err := limiter.TryAcquire(ctx, "email_send", 11); !errors.Is(err, ErrCostExceedsCapacity) {
		t.Errorf("expected ErrCostExceedsCapacity, got %v", err)
	}

	limiter.Close(ctx)
	if _, err := limiter.TryAcquire(ctx, "email_send", 1); !errors.Is(err, ErrLimiterClosed) {
		t.Errorf("expected ErrLimiterClosed, got %v", err)
	}
}

func TestLimitError(t *testing.T) {
	err := NewLimitError("email_send", &Result{RetryAfter: 1500 * time.Millisecond})

	if !IsLimited(err) {
		t.Error("LimitError must match ErrRateLimited")
	}
	if !errors.Is(err, ErrRateLimited) {
		t.Error("errors.Is must unwrap to ErrRateLimited")
	}
	if err.RetryAfter != 1500*time.Millisecond {
		t.Errorf("unexpected retry after: %s", err.RetryAfter)
	}
}
