package xscore

import (
	"math"
	"time"
)

// =============================================================================
// 数据结构
// =============================================================================

// Item 待排序的候选项。
// 因子值是事实来源，分数按需计算、从不持久化为权威数据。
type Item struct {
	// ID 不透明标识，也是最后一级的确定性排序键
	ID string

	// Labels 类别型因子值（exact/tier 规则读取），因子名 → 值
	Labels map[string]string

	// Verified 是否通过验证，严格资格过滤只保留已验证候选
	Verified bool

	// UpdatedAt 候选的最近活跃时间，decay 规则从这里计算经过时间
	UpdatedAt time.Time
}

// Context 查询侧上下文，携带每个 exact 因子的目标值
type Context struct {
	// Targets exact 因子的首选目标值，因子名 → 值
	Targets map[string]string

	// Alternates exact 因子的备选值集合，命中得 SecondaryCredit 比例的分数
	Alternates map[string][]string

	// Now decay 规则的参考时间，零值时取当前时间
	Now time.Time
}

// refTime 返回衰减计算的参考时间
func (c Context) refTime() time.Time {
	if c.Now.IsZero() {
		return time.Now()
	}
	return c.Now
}

// =============================================================================
// 评分引擎
// =============================================================================

// Engine 确定性评分引擎。创建后只读，可被任意多个 goroutine 并发使用。
type Engine struct {
	cfg     Config
	order   []string
	strict  Predicate
	relaxed Predicate
	cache   *memoCache
}

// New 创建评分引擎
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	e := &Engine{
		cfg:     cfg.Clone(),
		order:   cfg.summationOrder(),
		strict:  o.strict,
		relaxed: o.relaxed,
	}
	if o.cacheSize > 0 {
		cache, err := newMemoCache(o.cacheSize)
		if err != nil {
			return nil, err
		}
		e.cache = cache
	}
	return e, nil
}

// Score 计算候选项的分数分解。
//
// 纯函数：相同的 (item, sctx) 永远产生相同结果。分量按配置的求和
// 顺序排列，非零分量的点数之和恰好等于总分。
func (e *Engine) Score(item Item, sctx Context) *Breakdown {
	// Now 为零值时衰减参考墙钟，同样的输入会随时间算出不同结果，
	// 不能进缓存：首次结果会把已越过衰减断点的候选永久固化。
	if sctx.Now.IsZero() {
		return e.score(item, sctx)
	}

	if b, ok := e.cache.get(item, sctx); ok {
		return b
	}
	b := e.score(item, sctx)
	e.cache.put(item, sctx, b)
	return b
}

// score 执行一次完整的评分计算
func (e *Engine) score(item Item, sctx Context) *Breakdown {
	b := &Breakdown{ItemID: item.ID}
	for _, name := range e.order {
		rule := e.cfg.Factors[name]
		pts := points(rule.Weight, e.credit(rule, name, item, sctx))
		if pts != 0 {
			b.Components = append(b.Components, Component{Name: name, Points: pts})
		}
		b.Score += pts
	}

	// 权重校验保证了和不超过上界，这里只防御负值
	if b.Score < 0 {
		b.Score = 0
		b.Components = nil
	}
	if b.Score > e.cfg.MaxScore {
		b.Score = e.cfg.MaxScore
	}
	return b
}

// credit 按规则计算因子的子分比例，取值 [0, 1]
func (e *Engine) credit(rule FactorRule, name string, item Item, sctx Context) float64 {
	switch rule.Kind {
	case RuleExact:
		target, ok := sctx.Targets[name]
		if !ok {
			return 0
		}
		value := item.Labels[name]
		if value == "" {
			return 0
		}
		if value == target {
			return 1
		}
		for _, alt := range sctx.Alternates[name] {
			if value == alt {
				return rule.SecondaryCredit
			}
		}
		return 0

	case RuleDecay:
		if item.UpdatedAt.IsZero() {
			return 0
		}
		elapsed := sctx.refTime().Sub(item.UpdatedAt)
		for _, bp := range rule.Breakpoints {
			if elapsed < bp.Within {
				return bp.Credit
			}
		}
		return 0

	case RuleTier:
		return rule.Tiers[item.Labels[name]]

	default:
		return 0
	}
}

// points 将子分比例换算成整数点数
func points(weight int, credit float64) int {
	if credit <= 0 {
		return 0
	}
	if credit >= 1 {
		return weight
	}
	return int(math.Round(float64(weight) * credit))
}
