package xbucket

import "fmt"

// defaultKeyPrefix 默认存储键前缀
const defaultKeyPrefix = "bucket:"

// =============================================================================
// 失败策略
// =============================================================================

// FailurePolicy 存储不可达时的行为策略。
//
// 设计决策: 降级行为必须是显式配置出来的，组件绝不隐式选择
// 放行或拒绝。未配置时默认 FailClosed（拒绝）。
type FailurePolicy string

const (
	// FailClosed 存储不可达时拒绝请求并返回 ErrStoreUnavailable（默认）
	FailClosed FailurePolicy = "fail_closed"

	// FailOpen 存储不可达时放行请求，仅记录告警日志
	FailOpen FailurePolicy = "fail_open"

	// FailLocal 存储不可达时降级到进程内本地桶
	FailLocal FailurePolicy = "fail_local"
)

// IsValid 检查策略是否有效
func (p FailurePolicy) IsValid() bool {
	switch p {
	case FailClosed, FailOpen, FailLocal:
		return true
	default:
		return false
	}
}

// =============================================================================
// 配置
// =============================================================================

// Bucket 单个服务的令牌桶参数
type Bucket struct {
	// Capacity 桶容量，决定突发上限
	Capacity int64 `json:"capacity" yaml:"capacity" koanf:"capacity"`

	// RefillRate 每秒补充的令牌数，决定稳态吞吐
	RefillRate float64 `json:"refill_rate" yaml:"refill_rate" koanf:"refill_rate"`
}

// Validate 验证桶参数是否有效
func (b Bucket) Validate() error {
	if b.Capacity <= 0 {
		return fmt.Errorf("%w: capacity must be positive", ErrInvalidConfig)
	}
	if b.RefillRate <= 0 {
		return fmt.Errorf("%w: refill rate must be positive", ErrInvalidConfig)
	}
	return nil
}

// Config 限流器配置。
// 所有 per-service 参数都在这里声明式给出，组件自身不持有服务知识。
type Config struct {
	// KeyPrefix 存储键前缀，默认为 "bucket:"
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix" koanf:"key_prefix"`

	// Policy 存储不可达时的失败策略，默认 FailClosed
	Policy FailurePolicy `json:"policy" yaml:"policy" koanf:"policy"`

	// Services 服务名到令牌桶参数的映射
	Services map[string]Bucket `json:"services" yaml:"services" koanf:"services"`
}

// DefaultConfig 返回默认配置（无服务声明，需调用方补充）
func DefaultConfig() Config {
	return Config{
		KeyPrefix: defaultKeyPrefix,
		Policy:    FailClosed,
	}
}

// Validate 验证配置是否有效
func (c Config) Validate() error {
	if len(c.Services) == 0 {
		return fmt.Errorf("%w: no services configured", ErrInvalidConfig)
	}
	if c.Policy != "" && !c.Policy.IsValid() {
		return fmt.Errorf("%w: unknown failure policy %q", ErrInvalidConfig, c.Policy)
	}
	for name, bucket := range c.Services {
		if name == "" {
			return fmt.Errorf("%w: empty service name", ErrInvalidConfig)
		}
		if err := bucket.Validate(); err != nil {
			return fmt.Errorf("service %q: %w", name, err)
		}
	}
	return nil
}

// Clone 创建配置的深拷贝
func (c Config) Clone() Config {
	clone := Config{KeyPrefix: c.KeyPrefix, Policy: c.Policy}
	if c.Services != nil {
		clone.Services = make(map[string]Bucket, len(c.Services))
		for name, bucket := range c.Services {
			clone.Services[name] = bucket
		}
	}
	return clone
}

// effectivePrefix 返回有效键前缀
func (c Config) effectivePrefix() string {
	if c.KeyPrefix == "" {
		return defaultKeyPrefix
	}
	return c.KeyPrefix
}

// effectivePolicy 返回有效失败策略
func (c Config) effectivePolicy() FailurePolicy {
	if c.Policy == "" {
		return FailClosed
	}
	return c.Policy
}
