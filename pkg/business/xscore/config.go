package xscore

import (
	"fmt"
	"sort"
	"time"
)

// =============================================================================
// 归一化规则
// =============================================================================

// RuleKind 因子归一化规则种类
type RuleKind string

const (
	// RuleExact 精确匹配：满分 / 备选部分分 / 零分
	RuleExact RuleKind = "exact"

	// RuleDecay 时间衰减：按断点表对经过时间单调衰减
	RuleDecay RuleKind = "decay"

	// RuleTier 档位查表：档位名 → 子分比例
	RuleTier RuleKind = "tier"
)

// IsValid 检查规则种类是否有效
func (k RuleKind) IsValid() bool {
	switch k {
	case RuleExact, RuleDecay, RuleTier:
		return true
	default:
		return false
	}
}

// Breakpoint 衰减断点：经过时间小于 Within 时得 Credit 比例的分数。
// 断点必须按 Within 升序声明，Credit 单调不增。
type Breakpoint struct {
	// Within 断点上界（不含）
	Within time.Duration `json:"within" yaml:"within" koanf:"within"`

	// Credit 子分比例，取值 [0, 1]
	Credit float64 `json:"credit" yaml:"credit" koanf:"credit"`
}

// FactorRule 单个因子的归一化规则与权重
type FactorRule struct {
	// Kind 规则种类
	Kind RuleKind `json:"kind" yaml:"kind" koanf:"kind"`

	// Weight 满分点数，整数保证 rationale 求和精确
	Weight int `json:"weight" yaml:"weight" koanf:"weight"`

	// SecondaryCredit exact 规则下备选匹配的比例，取值 [0, 1]
	SecondaryCredit float64 `json:"secondary_credit,omitempty" yaml:"secondary_credit,omitempty" koanf:"secondary_credit"`

	// Breakpoints decay 规则的断点表
	Breakpoints []Breakpoint `json:"breakpoints,omitempty" yaml:"breakpoints,omitempty" koanf:"breakpoints"`

	// Tiers tier 规则的档位表
	Tiers map[string]float64 `json:"tiers,omitempty" yaml:"tiers,omitempty" koanf:"tiers"`
}

// Validate 验证规则是否有效
func (r FactorRule) Validate() error {
	if !r.Kind.IsValid() {
		return fmt.Errorf("%w: unknown rule kind %q", ErrInvalidConfig, r.Kind)
	}
	if r.Weight <= 0 {
		return fmt.Errorf("%w: weight must be positive", ErrInvalidConfig)
	}

	switch r.Kind {
	case RuleExact:
		if r.SecondaryCredit < 0 || r.SecondaryCredit > 1 {
			return fmt.Errorf("%w: secondary credit must be in [0,1]", ErrInvalidConfig)
		}
	case RuleDecay:
		if len(r.Breakpoints) == 0 {
			return fmt.Errorf("%w: decay rule requires breakpoints", ErrInvalidConfig)
		}
		prev := Breakpoint{Within: -1, Credit: 1.01}
		for i, bp := range r.Breakpoints {
			if bp.Within <= prev.Within {
				return fmt.Errorf("%w: breakpoint %d not in ascending order", ErrInvalidConfig, i)
			}
			if bp.Credit < 0 || bp.Credit > 1 {
				return fmt.Errorf("%w: breakpoint %d credit must be in [0,1]", ErrInvalidConfig, i)
			}
			if bp.Credit > prev.Credit {
				return fmt.Errorf("%w: breakpoint %d credit must not increase", ErrInvalidConfig, i)
			}
			prev = bp
		}
	case RuleTier:
		if len(r.Tiers) == 0 {
			return fmt.Errorf("%w: tier rule requires a tier table", ErrInvalidConfig)
		}
		for tier, credit := range r.Tiers {
			if credit < 0 || credit > 1 {
				return fmt.Errorf("%w: tier %q credit must be in [0,1]", ErrInvalidConfig, tier)
			}
		}
	}
	return nil
}

// =============================================================================
// 配置
// =============================================================================

// Config 评分引擎配置。
// 权重、断点、档位表都是部署期配置，引擎自身不持有任何业务常量。
type Config struct {
	// MaxScore 总分上界，分数被钳制到 [0, MaxScore]
	MaxScore int `json:"max_score" yaml:"max_score" koanf:"max_score"`

	// Scale 权重点数之和的期望值（如 100）。非 0 时校验权重和必须等于它。
	Scale int `json:"scale,omitempty" yaml:"scale,omitempty" koanf:"scale"`

	// Factors 因子名到规则的映射
	Factors map[string]FactorRule `json:"factors" yaml:"factors" koanf:"factors"`

	// Order 因子的求和顺序，决定 rationale 分量的呈现顺序。
	// 省略时按因子名字典序求和。
	Order []string `json:"order,omitempty" yaml:"order,omitempty" koanf:"order"`
}

// Validate 验证配置是否有效
func (c Config) Validate() error {
	if c.MaxScore <= 0 {
		return fmt.Errorf("%w: max score must be positive", ErrInvalidConfig)
	}
	if len(c.Factors) == 0 {
		return fmt.Errorf("%w: no factors configured", ErrInvalidConfig)
	}

	sum := 0
	for name, rule := range c.Factors {
		if name == "" {
			return fmt.Errorf("%w: empty factor name", ErrInvalidConfig)
		}
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("factor %q: %w", name, err)
		}
		sum += rule.Weight
	}
	if c.Scale > 0 && sum != c.Scale {
		return fmt.Errorf("%w: factor weights sum to %d, expected scale %d", ErrInvalidConfig, sum, c.Scale)
	}
	// 权重和不超过上界时钳制永不截断，rationale 求和不变量结构性成立
	if sum > c.MaxScore {
		return fmt.Errorf("%w: factor weights sum to %d, exceeding max score %d", ErrInvalidConfig, sum, c.MaxScore)
	}

	if len(c.Order) > 0 {
		seen := make(map[string]bool, len(c.Order))
		for _, name := range c.Order {
			if _, ok := c.Factors[name]; !ok {
				return fmt.Errorf("%w: order references unknown factor %q", ErrInvalidConfig, name)
			}
			if seen[name] {
				return fmt.Errorf("%w: order repeats factor %q", ErrInvalidConfig, name)
			}
			seen[name] = true
		}
		if len(c.Order) != len(c.Factors) {
			return fmt.Errorf("%w: order must cover every factor", ErrInvalidConfig)
		}
	}
	return nil
}

// Clone 创建配置的深拷贝
func (c Config) Clone() Config {
	clone := Config{MaxScore: c.MaxScore, Scale: c.Scale}
	if c.Factors != nil {
		clone.Factors = make(map[string]FactorRule, len(c.Factors))
		for name, rule := range c.Factors {
			r := rule
			if rule.Breakpoints != nil {
				r.Breakpoints = append([]Breakpoint(nil), rule.Breakpoints...)
			}
			if rule.Tiers != nil {
				r.Tiers = make(map[string]float64, len(rule.Tiers))
				for tier, credit := range rule.Tiers {
					r.Tiers[tier] = credit
				}
			}
			clone.Factors[name] = r
		}
	}
	if c.Order != nil {
		clone.Order = append([]string(nil), c.Order...)
	}
	return clone
}

// summationOrder 返回确定性的因子求和顺序
func (c Config) summationOrder() []string {
	if len(c.Order) > 0 {
		return c.Order
	}
	names := make([]string, 0, len(c.Factors))
	for name := range c.Factors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
