package xscore

import "slices"

// Ranked 排序结果中的单项
type Ranked struct {
	// Item 候选项
	Item Item
	// Score 总分
	Score int
	// Breakdown 分数分解
	Breakdown *Breakdown
	// Rationale 人类可读的分数解释
	Rationale string
}

// Rank 对候选集评分、过滤并排序，返回前 limit 项（limit <= 0 表示不截断）。
//
// 两级资格过滤：先用严格谓词（默认只保留已验证候选）；数量不足 limit
// （或为空）时退到宽松谓词重试。空候选集和全部不合格都返回空结果，
// 不是错误——是否放宽搜索由调用方决定。
//
// 排序完全确定：分数降序 → 更新时间新者在前 → ID 升序。
func (e *Engine) Rank(items []Item, sctx Context, limit int) []Ranked {
	if len(items) == 0 {
		return nil
	}

	pool := filter(items, e.strict)
	if len(pool) == 0 || (limit > 0 && len(pool) < limit) {
		pool = filter(items, e.relaxed)
	}
	if len(pool) == 0 {
		return nil
	}

	ranked := make([]Ranked, len(pool))
	for i, item := range pool {
		b := e.Score(item, sctx)
		ranked[i] = Ranked{
			Item:      item,
			Score:     b.Score,
			Breakdown: b,
			Rationale: b.Rationale(),
		}
	}

	slices.SortStableFunc(ranked, func(a, b Ranked) int {
		if a.Score != b.Score {
			if a.Score > b.Score {
				return -1
			}
			return 1
		}
		if !a.Item.UpdatedAt.Equal(b.Item.UpdatedAt) {
			if a.Item.UpdatedAt.After(b.Item.UpdatedAt) {
				return -1
			}
			return 1
		}
		if a.Item.ID < b.Item.ID {
			return -1
		}
		if a.Item.ID > b.Item.ID {
			return 1
		}
		return 0
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// filter 按谓词过滤候选集
func filter(items []Item, keep Predicate) []Item {
	pool := make([]Item, 0, len(items))
	for _, item := range items {
		if keep(item) {
			pool = append(pool, item)
		}
	}
	return pool
}
