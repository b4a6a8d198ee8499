// Package xscore 提供确定性、可解释的加权评分与排序引擎。
//
// 评分是因子与权重的纯函数：相同输入永远产生相同分数，分数只是视图，
// 因子才是事实来源。每个因子按声明的规则归一化：
//
//   - exact: 精确匹配得满分，备选匹配得部分分（如 0.6），否则 0
//   - decay: 随经过时间按断点表单调衰减（如 <90d→1.0, <180d→0.7）
//   - tier:  档位查表（如 credibility 档位 → 子分）
//
// 内部以整数点数累加，保证 rationale 中各分量之和恰好等于总分
// （可解释性的核心不变量）。排序使用两级资格过滤：先只取已验证
// 候选，不足 limit 时放宽到全部候选；平分按时间新旧、再按 ID 决定，
// 排序结果完全确定。
//
// 基础用法：
//
//	engine, err := xscore.New(cfg)
//	if err != nil {
//		return err
//	}
//	ranked := engine.Rank(items, sctx, 3)
//	for _, r := range ranked {
//		fmt.Printf("%s: %d (%s)\n", r.Item.ID, r.Score, r.Rationale)
//	}
package xscore
