package xscore

import "errors"

// 预定义错误，使用 errors.Is 进行比较
var (
	// ErrInvalidConfig 表示评分配置无效
	ErrInvalidConfig = errors.New("xscore: invalid config")

	// ErrNoEligibleCandidates 表示没有通过资格过滤的候选。
	// 空排序结果本身不是错误；此哨兵供偏好 error 风格检查的调用方使用。
	ErrNoEligibleCandidates = errors.New("xscore: no eligible candidates")
)
