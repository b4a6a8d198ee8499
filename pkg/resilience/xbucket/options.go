package xbucket

import (
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/caseyos/gtmkit/pkg/observability/xobs"
)

// defaultLocalBucketCap 本地桶条目缓存的容量上限
const defaultLocalBucketCap = 4096

// options 内部配置结构
type options struct {
	config        Config
	logger        xobs.Logger
	observer      xobs.Observer
	meterProvider metric.MeterProvider
	metrics       *limiterMetrics
	localCap      int
	now           func() time.Time
}

// Option 配置选项函数
type Option func(*options)

// defaultOptions 返回默认配置
func defaultOptions() *options {
	return &options{
		config:   DefaultConfig(),
		localCap: defaultLocalBucketCap,
		now:      time.Now,
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

// WithService 追加单个服务的令牌桶参数
func WithService(name string, bucket Bucket) Option {
	return func(o *options) {
		if o.config.Services == nil {
			o.config.Services = make(map[string]Bucket)
		}
		o.config.Services[name] = bucket
	}
}

// WithKeyPrefix 设置存储键前缀，默认为 "bucket:"
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		o.config.KeyPrefix = prefix
	}
}

// WithPolicy 设置存储不可达时的失败策略，默认 FailClosed
func WithPolicy(policy FailurePolicy) Option {
	return func(o *options) {
		o.config.Policy = policy
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

// WithLocalCapacity 设置本地后端桶条目缓存的容量上限。
// 被淘汰的桶在下次访问时以满桶重建，不影响正确性。
func WithLocalCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.localCap = n
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
