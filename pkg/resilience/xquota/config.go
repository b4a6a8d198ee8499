package xquota

import "fmt"

// defaultKeyPrefix 默认存储键前缀
const defaultKeyPrefix = "quota:"

// ServiceLimit 单个服务的各窗口上限。
// 0 表示该窗口不设限；至少要有一个窗口设限。
type ServiceLimit struct {
	// Daily 日窗口上限
	Daily int64 `json:"daily,omitempty" yaml:"daily,omitempty" koanf:"daily"`

	// Weekly 周窗口上限
	Weekly int64 `json:"weekly,omitempty" yaml:"weekly,omitempty" koanf:"weekly"`

	// Monthly 月窗口上限
	Monthly int64 `json:"monthly,omitempty" yaml:"monthly,omitempty" koanf:"monthly"`
}

// limitFor 返回指定窗口的上限，0 表示不设限
func (l ServiceLimit) limitFor(kind WindowKind) int64 {
	switch kind {
	case WindowWeekly:
		return l.Weekly
	case WindowMonthly:
		return l.Monthly
	default:
		return l.Daily
	}
}

// enforcedKinds 返回设限的窗口列表，顺序固定（日→周→月）
func (l ServiceLimit) enforcedKinds() []WindowKind {
	kinds := make([]WindowKind, 0, len(windowKinds))
	for _, k := range windowKinds {
		if l.limitFor(k) > 0 {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// Validate 验证服务配置是否有效
func (l ServiceLimit) Validate() error {
	if l.Daily < 0 || l.Weekly < 0 || l.Monthly < 0 {
		return fmt.Errorf("%w: limits cannot be negative", ErrInvalidConfig)
	}
	if l.Daily == 0 && l.Weekly == 0 && l.Monthly == 0 {
		return fmt.Errorf("%w: at least one window limit is required", ErrInvalidConfig)
	}
	return nil
}

// Config 配额存储配置。
// 所有 per-service 规则都在这里声明式给出，组件自身不持有服务知识。
type Config struct {
	// KeyPrefix 存储键前缀，默认为 "quota:"
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix" koanf:"key_prefix"`

	// Services 服务名到窗口上限的映射
	Services map[string]ServiceLimit `json:"services" yaml:"services" koanf:"services"`
}

// DefaultConfig 返回默认配置（无服务声明，需调用方补充）
func DefaultConfig() Config {
	return Config{KeyPrefix: defaultKeyPrefix}
}

// Validate 验证配置是否有效
func (c Config) Validate() error {
	if len(c.Services) == 0 {
		return fmt.Errorf("%w: no services configured", ErrInvalidConfig)
	}
	for name, limit := range c.Services {
		if name == "" {
			return fmt.Errorf("%w: empty service name", ErrInvalidConfig)
		}
		if err := limit.Validate(); err != nil {
			return fmt.Errorf("service %q: %w", name, err)
		}
	}
	return nil
}

// Clone 创建配置的深拷贝
func (c Config) Clone() Config {
	clone := Config{KeyPrefix: c.KeyPrefix}
	if c.Services != nil {
		clone.Services = make(map[string]ServiceLimit, len(c.Services))
		for name, limit := range c.Services {
			clone.Services[name] = limit
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
