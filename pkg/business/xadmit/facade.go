package xadmit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sony/gobreaker/v2"

	"github.com/caseyos/gtmkit/pkg/business/xscore"
	"github.com/caseyos/gtmkit/pkg/observability/xobs"
	"github.com/caseyos/gtmkit/pkg/resilience/xbucket"
	"github.com/caseyos/gtmkit/pkg/resilience/xquota"
)

// Facade 准入与排序门面，聚合限流器、配额存储和评分引擎。
// 创建后可被任意多个 goroutine 并发使用。
//
// 限流器和配额存储各有一个熔断器：一边的成功不会重置另一边的
// 失败计数，单边存储宕机也能独立快速失败。
type Facade struct {
	limiter        xbucket.Limiter
	quota          xquota.Store
	engine         *xscore.Engine
	limiterBreaker *gobreaker.CircuitBreaker[any]
	quotaBreaker   *gobreaker.CircuitBreaker[any]
	opts           *options
}

// New 创建门面。limiter、quota、engine 都是必需依赖。
func New(limiter xbucket.Limiter, quota xquota.Store, engine *xscore.Engine, opts ...Option) (*Facade, error) {
	if limiter == nil {
		return nil, fmt.Errorf("%w: limiter", ErrNilDependency)
	}
	if quota == nil {
		return nil, fmt.Errorf("%w: quota store", ErrNilDependency)
	}
	if engine == nil {
		return nil, fmt.Errorf("%w: scoring engine", ErrNilDependency)
	}

	cfg := defaultOptions()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.idGen == nil {
		gen, err := newSonyflakeGen()
		if err != nil {
			return nil, fmt.Errorf("xadmit: id generator: %w", err)
		}
		cfg.idGen = gen
	}

	metrics, err := newMetrics(cfg.meterProvider)
	if err != nil {
		return nil, err
	}
	cfg.metrics = metrics

	f := &Facade{
		limiter: limiter,
		quota:   quota,
		engine:  engine,
		opts:    cfg,
	}
	if !cfg.breakerDisabled {
		limiterSettings := cfg.breakerSettings
		limiterSettings.Name = cfg.breakerSettings.Name + "-limiter"
		quotaSettings := cfg.breakerSettings
		quotaSettings.Name = cfg.breakerSettings.Name + "-quota"
		f.limiterBreaker = gobreaker.NewCircuitBreaker[any](limiterSettings)
		f.quotaBreaker = gobreaker.NewCircuitBreaker[any](quotaSettings)
	}
	return f, nil
}

// RequestAction 执行一次完整的准入裁决：
//
//	CHECK_LIMITER → CHECK_QUOTA → RANK → COMMIT → DONE
//
// 失败路径的补偿：配额拒绝或排序为空时退还已获取的令牌；配额消费
// （COMMIT）是最后一个不可逆步骤，发生在排序之后，保证副作用
// 要么全部发生、要么全不发生。
//
// 每一步对存储至多一次往返；存储不可达时快速失败返回
// ErrStoreUnavailable，重试策略属于调用方（见 RequestActionWithRetry）。
func (f *Facade) RequestAction(ctx context.Context, subject, service string, candidates []xscore.Item, sctx xscore.Context, cost int64) (*Decision, error) {
	if subject == "" || service == "" {
		return nil, fmt.Errorf("%w: subject and service are required", ErrInvalidRequest)
	}
	if cost <= 0 {
		return nil, fmt.Errorf("%w: cost must be positive", ErrInvalidRequest)
	}

	ctx, span := xobs.Start(ctx, f.opts.observer, xobs.SpanOptions{
		Component: "xadmit",
		Operation: "request_action",
		Attrs: []xobs.Attr{
			xobs.String("subject", subject),
			xobs.String("service", service),
			xobs.Int("candidates", len(candidates)),
			xobs.Int64("cost", cost),
		},
	})

	d, err := f.requestAction(ctx, subject, service, candidates, sctx, cost)
	if err != nil {
		span.End(xobs.Result{Err: err})
		return nil, err
	}
	span.End(xobs.Result{Attrs: []xobs.Attr{
		xobs.Bool("empty", d.Empty),
		xobs.String("winner", d.WinnerID),
	}})
	return d, nil
}

func (f *Facade) requestAction(ctx context.Context, subject, service string, candidates []xscore.Item, sctx xscore.Context, cost int64) (*Decision, error) {
	// CHECK_LIMITER
	bres, err := f.tryAcquire(ctx, service, cost)
	if err != nil {
		f.opts.metrics.recordDecision(ctx, service, outcomeStoreError)
		return nil, err
	}
	if !bres.Allowed {
		f.opts.metrics.recordDecision(ctx, service, outcomeRateLimited)
		return nil, xbucket.NewLimitError(service, bres)
	}

	// CHECK_QUOTA（只读预检，消费在 COMMIT）
	qres, err := f.checkQuota(ctx, subject, service, cost)
	if err != nil {
		f.releaseToken(ctx, service, cost, bres)
		f.opts.metrics.recordDecision(ctx, service, outcomeStoreError)
		return nil, err
	}
	if !qres.Allowed {
		// CHECK_QUOTA_FAIL → RELEASE_TOKEN → DONE(fail)
		f.releaseToken(ctx, service, cost, bres)
		f.opts.metrics.recordDecision(ctx, service, outcomeQuotaExceeded)
		return nil, xquota.NewQuotaError(subject, service, qres)
	}

	// RANK
	ranked := f.engine.Rank(candidates, sctx, 1)
	if len(ranked) == 0 {
		// RANK_EMPTY → RELEASE_TOKEN → DONE(fail)：配额尚未消费，无需退还
		f.releaseToken(ctx, service, cost, bres)
		f.opts.metrics.recordDecision(ctx, service, outcomeEmpty)

		d := f.newDecision(subject, service)
		d.Empty = true
		f.record(ctx, d)
		return d, nil
	}

	// COMMIT：唯一不可逆的步骤。预检到这里之间别的调用方可能拿走了
	// 最后一个配额单位，此时提交失败、退还令牌，对外表现与预检拒绝一致。
	cres, err := f.consumeQuota(ctx, subject, service, cost)
	if err != nil {
		f.releaseToken(ctx, service, cost, bres)
		f.opts.metrics.recordDecision(ctx, service, outcomeStoreError)
		return nil, err
	}
	if !cres.Allowed {
		f.releaseToken(ctx, service, cost, bres)
		f.opts.metrics.recordDecision(ctx, service, outcomeQuotaExceeded)
		return nil, xquota.NewQuotaError(subject, service, cres)
	}

	// DONE
	top := ranked[0]
	d := f.newDecision(subject, service)
	d.WinnerID = top.Item.ID
	d.Score = top.Score
	d.Rationale = top.Rationale
	d.RemainingTokens = bres.Remaining
	d.RemainingQuota = cres.Remaining
	d.QuotaResetAt = cres.ResetAt

	f.opts.metrics.recordDecision(ctx, service, outcomeGranted)
	f.record(ctx, d)
	return d, nil
}

// newDecision 构造带 ID 和时间戳的裁决骨架。
// ID 生成失败不值得让整个请求失败，置零并记告警。
func (f *Facade) newDecision(subject, service string) *Decision {
	d := &Decision{
		Subject:   subject,
		Service:   service,
		DecidedAt: f.opts.now().UTC(),
	}
	id, err := f.opts.idGen()
	if err != nil {
		f.warn(context.Background(), "decision id generation failed", slog.String("error", err.Error()))
		return d
	}
	d.ID = id
	return d
}

// tryAcquire 经熔断器获取令牌
func (f *Facade) tryAcquire(ctx context.Context, service string, cost int64) (*xbucket.Result, error) {
	v, err := f.guard(f.limiterBreaker, func() (any, error) {
		return f.limiter.TryAcquire(ctx, service, cost)
	})
	if err != nil {
		return nil, f.classify(err)
	}
	return v.(*xbucket.Result), nil
}

// checkQuota 经熔断器只读预检配额
func (f *Facade) checkQuota(ctx context.Context, subject, service string, amount int64) (*xquota.Result, error) {
	v, err := f.guard(f.quotaBreaker, func() (any, error) {
		return f.quota.Check(ctx, subject, service, amount)
	})
	if err != nil {
		return nil, f.classify(err)
	}
	return v.(*xquota.Result), nil
}

// consumeQuota 经熔断器提交配额消费
func (f *Facade) consumeQuota(ctx context.Context, subject, service string, amount int64) (*xquota.Result, error) {
	v, err := f.guard(f.quotaBreaker, func() (any, error) {
		return f.quota.Consume(ctx, subject, service, amount)
	})
	if err != nil {
		return nil, f.classify(err)
	}
	return v.(*xquota.Result), nil
}

// releaseToken 补偿退还令牌。
// 补偿失败不能掩盖原始失败，只记告警；桶以容量封顶保证不会多退。
// 降级放行（FailOpen）没有扣减任何桶，退还会凭空多出令牌，直接跳过。
func (f *Facade) releaseToken(ctx context.Context, service string, cost int64, bres *xbucket.Result) {
	if !bres.Charged {
		return
	}
	if err := f.limiter.Release(context.WithoutCancel(ctx), service, cost); err != nil {
		f.warn(ctx, "token release failed",
			slog.String("service", service),
			slog.Int64("cost", cost),
			slog.String("error", err.Error()),
		)
	}
}

// guard 经熔断器执行存储调用，熔断打开映射为存储不可达
func (f *Facade) guard(breaker *gobreaker.CircuitBreaker[any], fn func() (any, error)) (any, error) {
	if breaker == nil {
		return fn()
	}
	v, err := breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: circuit open: %w", ErrStoreUnavailable, err)
	}
	return v, err
}

// classify 将基础设施故障归一为 ErrStoreUnavailable，业务错误原样透传
func (f *Facade) classify(err error) error {
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	if isStoreFailure(err) {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return err
}

// record 写入裁决日志，失败只记告警
func (f *Facade) record(ctx context.Context, d *Decision) {
	if f.opts.journal == nil {
		return
	}
	if err := f.opts.journal.Record(context.WithoutCancel(ctx), d); err != nil {
		f.warn(ctx, "journal record failed",
			slog.Int64("decision_id", d.ID),
			slog.String("error", err.Error()),
		)
	}
}

// warn 记录告警日志
func (f *Facade) warn(ctx context.Context, msg string, attrs ...slog.Attr) {
	if f.opts.logger == nil {
		return
	}
	f.opts.logger.Warn(ctx, msg, attrs...)
}
