package xadmit

import (
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/sony/sonyflake/v2"
	"go.opentelemetry.io/otel/metric"

	"github.com/caseyos/gtmkit/pkg/observability/xobs"
)

// IDGenerator 裁决 ID 生成函数
type IDGenerator func() (int64, error)

// options 内部配置结构
type options struct {
	journal         Journal
	logger          xobs.Logger
	observer        xobs.Observer
	meterProvider   metric.MeterProvider
	metrics         *facadeMetrics
	breakerSettings gobreaker.Settings
	breakerDisabled bool
	idGen           IDGenerator
	now             func() time.Time
}

// Option 配置选项函数
type Option func(*options)

// defaultBreakerSettings 返回默认熔断配置：
// 连续 5 次存储故障后打开，30 秒后进入半开试探。
func defaultBreakerSettings() gobreaker.Settings {
	return gobreaker.Settings{
		Name:        "xadmit-store",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// 只有基础设施故障才算失败，业务性错误（限流、配额、参数）不触发熔断
		IsSuccessful: func(err error) bool {
			return err == nil || !isStoreFailure(err)
		},
	}
}

// defaultOptions 返回默认配置
func defaultOptions() *options {
	return &options{
		breakerSettings: defaultBreakerSettings(),
		now:             time.Now,
	}
}

// newSonyflakeGen 创建默认的 sonyflake 裁决 ID 生成器
func newSonyflakeGen() (IDGenerator, error) {
	sf, err := sonyflake.New(sonyflake.Settings{})
	if err != nil {
		return nil, err
	}
	return sf.NextID, nil
}

// WithJournal 设置裁决日志。日志写入失败只记告警，不影响请求结果。
func WithJournal(journal Journal) Option {
	return func(o *options) {
		o.journal = journal
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger xobs.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithObserver 设置可观测性观察者
func WithObserver(observer xobs.Observer) Option {
	return func(o *options) {
		o.observer = observer
	}
}

// WithMeterProvider 设置 OpenTelemetry MeterProvider。
// 不设置则不收集指标。
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		o.meterProvider = mp
	}
}

// WithBreakerSettings 覆盖存储熔断器配置。
// IsSuccessful 留空时使用默认的基础设施故障分类。
func WithBreakerSettings(settings gobreaker.Settings) Option {
	return func(o *options) {
		if settings.IsSuccessful == nil {
			settings.IsSuccessful = defaultBreakerSettings().IsSuccessful
		}
		o.breakerSettings = settings
	}
}

// WithoutBreaker 关闭存储熔断器，存储故障直接透传
func WithoutBreaker() Option {
	return func(o *options) {
		o.breakerDisabled = true
	}
}

// WithIDGenerator 替换裁决 ID 生成器，默认使用 sonyflake
func WithIDGenerator(gen IDGenerator) Option {
	return func(o *options) {
		if gen != nil {
			o.idGen = gen
		}
	}
}

// withClock 注入时钟，仅测试使用
func withClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
