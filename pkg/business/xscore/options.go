package xscore

// Predicate 候选项资格谓词
type Predicate func(Item) bool

// options 内部配置结构
type options struct {
	cacheSize int64
	strict    Predicate
	relaxed   Predicate
}

// Option 配置选项函数
type Option func(*options)

// defaultOptions 返回默认配置。
// 默认严格谓词只保留已验证候选，宽松谓词接受全部候选。
func defaultOptions() *options {
	return &options{
		strict:  func(item Item) bool { return item.Verified },
		relaxed: func(Item) bool { return true },
	}
}

// WithMemoCache 启用评分备忘缓存，size 为缓存条目数上限。
// 评分是纯函数，缓存命中与重算结果一致。
func WithMemoCache(size int64) Option {
	return func(o *options) {
		if size > 0 {
			o.cacheSize = size
		}
	}
}

// WithEligibility 替换两级资格谓词。
// strict 不足 limit 时退到 relaxed；两级都不通过的候选被硬过滤。
func WithEligibility(strict, relaxed Predicate) Option {
	return func(o *options) {
		if strict != nil {
			o.strict = strict
		}
		if relaxed != nil {
			o.relaxed = relaxed
		}
	}
}
