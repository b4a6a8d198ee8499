package xscore

import (
	"fmt"
	"strings"
)

// Component 分数中的单个分量
type Component struct {
	// Name 因子名
	Name string
	// Points 该因子贡献的点数
	Points int
}

// String 渲染为 "factor (+Npt)" 形式
func (c Component) String() string {
	return fmt.Sprintf("%s (+%dpt)", c.Name, c.Points)
}

// Breakdown 分数分解。
// Components 只含非零分量，顺序与求和顺序一致，点数之和等于 Score。
type Breakdown struct {
	// ItemID 候选项标识
	ItemID string
	// Score 总分，已钳制到 [0, MaxScore]
	Score int
	// Components 非零分量，按求和顺序排列
	Components []Component
}

// Explain 渲染 rationale 分量列表，逐项 "factor (+Npt)"
func (b *Breakdown) Explain() []string {
	parts := make([]string, len(b.Components))
	for i, c := range b.Components {
		parts[i] = c.String()
	}
	return parts
}

// Rationale 渲染完整 rationale 字符串
func (b *Breakdown) Rationale() string {
	return strings.Join(b.Explain(), ", ")
}
