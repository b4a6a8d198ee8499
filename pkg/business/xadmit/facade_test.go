//nolint:errcheck // 测试文件中的错误处理简化
package xadmit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseyos/gtmkit/pkg/business/xscore"
	"github.com/caseyos/gtmkit/pkg/resilience/xbucket"
	"github.com/caseyos/gtmkit/pkg/resilience/xquota"
)

// testEnv 门面测试环境
type testEnv struct {
	facade  *Facade
	limiter xbucket.Limiter
	quota   xquota.Store
	journal *MemoryJournal
}

// envConfig 测试环境参数
type envConfig struct {
	capacity   int64
	refillRate float64
	dailyLimit int64
}

func newTestEnv(t *testing.T, cfg envConfig, opts ...Option) *testEnv {
	t.Helper()

	limiter, err := xbucket.NewLocal(
		xbucket.WithService("email_send", xbucket.Bucket{Capacity: cfg.capacity, RefillRate: cfg.refillRate}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { limiter.Close(context.Background()) })

	quota, err := xquota.NewLocal(
		xquota.WithService("email_send", xquota.ServiceLimit{Daily: cfg.dailyLimit}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { quota.Close(context.Background()) })

	engine, err := xscore.New(xscore.Config{
		MaxScore: 10,
		Factors:  map[string]xscore.FactorRule{"persona": {Kind: xscore.RuleExact, Weight: 10}},
	})
	require.NoError(t, err)

	journal := NewMemoryJournal(64)
	var seq atomic.Int64
	opts = append([]Option{
		WithJournal(journal),
		WithIDGenerator(func() (int64, error) { return seq.Add(1), nil }),
	}, opts...)

	facade, err := New(limiter, quota, engine, opts...)
	require.NoError(t, err)

	return &testEnv{facade: facade, limiter: limiter, quota: quota, journal: journal}
}

func testCandidates() []xscore.Item {
	return []xscore.Item{
		{ID: "cand-1", Verified: true, Labels: map[string]string{"persona": "cto"}},
		{ID: "cand-2", Verified: true},
	}
}

func testContext() xscore.Context {
	return xscore.Context{Targets: map[string]string{"persona": "cto"}}
}

func TestRequestAction_Granted(t *testing.T) {
	env := newTestEnv(t, envConfig{capacity: 10, refillRate: 1, dailyLimit: 5})
	ctx := context.Background()

	d, err := env.facade.RequestAction(ctx, "acct-1", "email_send", testCandidates(), testContext(), 1)
	require.NoError(t, err)

	assert.Equal(t, int64(1), d.ID)
	assert.False(t, d.Empty)
	assert.Equal(t, "cand-1", d.WinnerID)
	assert.Equal(t, 10, d.Score)
	assert.Equal(t, "persona (+10pt)", d.Rationale)
	assert.Equal(t, float64(9), d.RemainingTokens)
	assert.Equal(t, int64(4), d.RemainingQuota)
	assert.False(t, d.QuotaResetAt.IsZero())
	assert.NoError(t, d.Err())

	// 配额和令牌都恰好消费一次
	counters, err := env.quota.Query(ctx, "acct-1", "email_send")
	require.NoError(t, err)
	assert.Equal(t, int64(1), counters[0].Consumed)

	state, err := env.limiter.Query(ctx, "email_send")
	require.NoError(t, err)
	assert.InDelta(t, 9, state.Tokens, 0.01)

	// 裁决已入日志
	recorded := env.journal.List()
	require.Len(t, recorded, 1)
	assert.Equal(t, d.ID, recorded[0].ID)
}

func TestRequestAction_RateLimited(t *testing.T) {
	env := newTestEnv(t, envConfig{capacity: 1, refillRate: 0.001, dailyLimit: 5})
	ctx := context.Background()

	_, err := env.facade.RequestAction(ctx, "acct-1", "email_send", testCandidates(), testContext(), 1)
	require.NoError(t, err)

	_, err = env.facade.RequestAction(ctx, "acct-1", "email_send", testCandidates(), testContext(), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimited)

	var le *RateLimitedError
	require.ErrorAs(t, err, &le)
	assert.Positive(t, le.RetryAfter)

	// 限流失败不触碰配额
	counters, _ := env.quota.Query(ctx, "acct-1", "email_send")
	assert.Equal(t, int64(1), counters[0].Consumed)
}

func TestRequestAction_QuotaExceededCompensation(t *testing.T) {
	env := newTestEnv(t, envConfig{capacity: 10, refillRate: 0.001, dailyLimit: 1})
	ctx := context.Background()

	_, err := env.facade.RequestAction(ctx, "acct-1", "email_send", testCandidates(), testContext(), 1)
	require.NoError(t, err)

	before, _ := env.limiter.Query(ctx, "email_send")

	_, err = env.facade.RequestAction(ctx, "acct-1", "email_send", testCandidates(), testContext(), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	var qe *QuotaExceededError
	require.ErrorAs(t, err, &qe)
	assert.Zero(t, qe.Remaining)
	assert.False(t, qe.ResetAt.IsZero())

	// 补偿正确性：失败请求前后令牌余额净零
	after, _ := env.limiter.Query(ctx, "email_send")
	assert.InDelta(t, before.Tokens, after.Tokens, 0.01)
}

func TestRequestAction_EmptyCandidates(t *testing.T) {
	env := newTestEnv(t, envConfig{capacity: 10, refillRate: 0.001, dailyLimit: 5})
	ctx := context.Background()

	before, _ := env.limiter.Query(ctx, "email_send")

	d, err := env.facade.RequestAction(ctx, "acct-1", "email_send", nil, testContext(), 1)
	require.NoError(t, err)

	assert.True(t, d.Empty)
	assert.Empty(t, d.WinnerID)
	assert.ErrorIs(t, d.Err(), ErrNoEligibleCandidates)

	// 令牌已退还，配额未消费
	after, _ := env.limiter.Query(ctx, "email_send")
	assert.InDelta(t, before.Tokens, after.Tokens, 0.01)

	counters, _ := env.quota.Query(ctx, "acct-1", "email_send")
	assert.Zero(t, counters[0].Consumed)

	// 空裁决也入日志
	require.Len(t, env.journal.List(), 1)
	assert.True(t, env.journal.List()[0].Empty)
}

func TestRequestAction_NoDoubleSpend(t *testing.T) {
	const (
		callers    = 30
		dailyLimit = 10
	)
	env := newTestEnv(t, envConfig{capacity: 100, refillRate: 0.001, dailyLimit: dailyLimit})
	ctx := context.Background()

	var granted, exceeded atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.facade.RequestAction(ctx, "acct-1", "email_send", testCandidates(), testContext(), 1)
			switch {
			case err == nil:
				granted.Add(1)
			case IsRetryable(err):
				// 本场景桶容量充足，不应出现限流
				t.Error("unexpected rate limit")
			default:
				exceeded.Add(1)
			}
		}()
	}
	wg.Wait()

	// 恰好 min(N, K) 个成功，其余配额拒绝
	assert.Equal(t, int64(dailyLimit), granted.Load())
	assert.Equal(t, int64(callers-dailyLimit), exceeded.Load())

	counters, _ := env.quota.Query(ctx, "acct-1", "email_send")
	assert.Equal(t, int64(dailyLimit), counters[0].Consumed)

	// 失败请求的令牌全部退还：100 - 30 + 20 = 90
	state, _ := env.limiter.Query(ctx, "email_send")
	assert.InDelta(t, 90, state.Tokens, 0.1)
}

func TestRequestAction_InvalidRequest(t *testing.T) {
	env := newTestEnv(t, envConfig{capacity: 10, refillRate: 1, dailyLimit: 5})
	ctx := context.Background()

	_, err := env.facade.RequestAction(ctx, "", "email_send", testCandidates(), testContext(), 1)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = env.facade.RequestAction(ctx, "acct-1", "", testCandidates(), testContext(), 1)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = env.facade.RequestAction(ctx, "acct-1", "email_send", testCandidates(), testContext(), 0)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

// unreachableStore 模拟网络不可达的配额存储
type unreachableStore struct{}

func (unreachableStore) Check(context.Context, string, string, int64) (*xquota.Result, error) {
	return nil, fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED)
}

func (unreachableStore) Consume(context.Context, string, string, int64) (*xquota.Result, error) {
	return nil, fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED)
}

func (unreachableStore) Release(context.Context, string, string, int64) error {
	return fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED)
}

func (unreachableStore) Query(context.Context, string, string) ([]xquota.Counter, error) {
	return nil, fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED)
}

func (unreachableStore) Reset(context.Context, string, string) error {
	return fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED)
}

func (unreachableStore) Close(context.Context) error { return nil }

func TestRequestAction_StoreUnavailable(t *testing.T) {
	limiter, err := xbucket.NewLocal(
		xbucket.WithService("email_send", xbucket.Bucket{Capacity: 100, RefillRate: 1}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { limiter.Close(context.Background()) })

	engine, err := xscore.New(xscore.Config{
		MaxScore: 10,
		Factors:  map[string]xscore.FactorRule{"persona": {Kind: xscore.RuleExact, Weight: 10}},
	})
	require.NoError(t, err)

	facade, err := New(limiter, unreachableStore{}, engine,
		WithIDGenerator(func() (int64, error) { return 1, nil }),
	)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 8; i++ {
		_, err = facade.RequestAction(ctx, "acct-1", "email_send", testCandidates(), testContext(), 1)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrStoreUnavailable, "attempt %d", i)
	}

	// 连续故障后熔断打开，请求依旧快速失败且分类不变；
	// 失败路径每次都退还令牌，桶余额保持满
	state, _ := limiter.Query(ctx, "email_send")
	assert.InDelta(t, 100, state.Tokens, 0.1)
}

// failOpenLimiter 模拟存储宕机期间降级放行的限流器：
// 未扣减任何桶（Charged=false），并记录退还调用次数
type failOpenLimiter struct {
	releases atomic.Int64
}

func (l *failOpenLimiter) TryAcquire(context.Context, string, int64) (*xbucket.Result, error) {
	return &xbucket.Result{Allowed: true, Degraded: true}, nil
}

func (l *failOpenLimiter) Release(context.Context, string, int64) error {
	l.releases.Add(1)
	return nil
}

func (l *failOpenLimiter) Query(context.Context, string) (*xbucket.State, error) {
	return &xbucket.State{}, nil
}

func (l *failOpenLimiter) Close(context.Context) error { return nil }

func TestRequestAction_DegradedAcquireNotReleased(t *testing.T) {
	limiter := &failOpenLimiter{}

	quota, err := xquota.NewLocal(
		xquota.WithService("email_send", xquota.ServiceLimit{Daily: 1}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { quota.Close(context.Background()) })

	engine, err := xscore.New(xscore.Config{
		MaxScore: 10,
		Factors:  map[string]xscore.FactorRule{"persona": {Kind: xscore.RuleExact, Weight: 10}},
	})
	require.NoError(t, err)

	facade, err := New(limiter, quota, engine,
		WithIDGenerator(func() (int64, error) { return 1, nil }),
	)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = facade.RequestAction(ctx, "acct-1", "email_send", testCandidates(), testContext(), 1)
	require.NoError(t, err)

	// 配额拒绝触发补偿路径，但降级放行没有扣减令牌，不得退还
	_, err = facade.RequestAction(ctx, "acct-1", "email_send", testCandidates(), testContext(), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Zero(t, limiter.releases.Load())

	// 空排序路径同样跳过退还
	_, err = facade.RequestAction(ctx, "acct-2", "email_send", nil, testContext(), 1)
	require.NoError(t, err)
	assert.Zero(t, limiter.releases.Load())
}

func TestRequestActionWithRetry_RateLimited(t *testing.T) {
	env := newTestEnv(t, envConfig{capacity: 1, refillRate: 50, dailyLimit: 10})
	ctx := context.Background()

	// 占住唯一令牌
	_, err := env.facade.RequestAction(ctx, "acct-1", "email_send", testCandidates(), testContext(), 1)
	require.NoError(t, err)

	// 补充速率 50/s：首次被限流，约 20ms 后重试成功
	start := time.Now()
	d, err := env.facade.RequestActionWithRetry(ctx, "acct-1", "email_send", testCandidates(), testContext(), 1, 5)
	require.NoError(t, err)
	assert.Equal(t, "cand-1", d.WinnerID)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRequestActionWithRetry_QuotaNotRetried(t *testing.T) {
	env := newTestEnv(t, envConfig{capacity: 10, refillRate: 1, dailyLimit: 1})
	ctx := context.Background()

	_, err := env.facade.RequestAction(ctx, "acct-1", "email_send", testCandidates(), testContext(), 1)
	require.NoError(t, err)

	start := time.Now()
	_, err = env.facade.RequestActionWithRetry(ctx, "acct-1", "email_send", testCandidates(), testContext(), 1, 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	// 配额错误不重试，立即返回
	assert.Less(t, time.Since(start), time.Second)
}

func TestMemoryJournal_Ring(t *testing.T) {
	j := NewMemoryJournal(2)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, j.Record(ctx, &Decision{ID: i}))
	}

	list := j.List()
	require.Len(t, list, 2)
	assert.Equal(t, int64(2), list[0].ID)
	assert.Equal(t, int64(3), list[1].ID)
}

func TestNewMongoJournal_NilCollection(t *testing.T) {
	_, err := NewMongoJournal(nil)
	assert.ErrorIs(t, err, ErrNilDependency)
}

func TestNew_NilDependencies(t *testing.T) {
	env := newTestEnv(t, envConfig{capacity: 10, refillRate: 1, dailyLimit: 5})

	_, err := New(nil, env.quota, env.facade.engine)
	assert.ErrorIs(t, err, ErrNilDependency)

	_, err = New(env.limiter, nil, env.facade.engine)
	assert.ErrorIs(t, err, ErrNilDependency)

	_, err = New(env.limiter, env.quota, nil)
	assert.ErrorIs(t, err, ErrNilDependency)
}
