package xquota

import (
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/caseyos/gtmkit/pkg/observability/xobs"
)

// options 内部配置结构
type options struct {
	config        Config
	logger        xobs.Logger
	observer      xobs.Observer
	meterProvider metric.MeterProvider
	metrics       *storeMetrics
	janitorSpec   string
	now           func() time.Time
}

// Option 配置选项函数
type Option func(*options)

// defaultOptions 返回默认配置
func defaultOptions() *options {
	return &options{
		config: DefaultConfig(),
		now:    time.Now,
	}
}

// validate 验证选项
func (o *options) validate() error {
	return o.config.Validate()
}

// WithConfig 使用完整配置覆盖
func WithConfig(config Config) Option {
	return func(o *options) {
		o.config = config
	}
}

// WithService 追加单个服务的窗口上限
func WithService(name string, limit ServiceLimit) Option {
	return func(o *options) {
		if o.config.Services == nil {
			o.config.Services = make(map[string]ServiceLimit)
		}
		o.config.Services[name] = limit
	}
}

// WithKeyPrefix 设置存储键前缀，默认为 "quota:"
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		o.config.KeyPrefix = prefix
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

// WithJanitor 启用本地后端的定时清扫（cron 表达式，UTC）。
// 仅对 NewLocal 生效；Redis 后端由键 TTL 自动回收。
func WithJanitor(cronSpec string) Option {
	return func(o *options) {
		o.janitorSpec = cronSpec
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
