package xquota

import (
	"fmt"
	"time"
)

// WindowKind 配额窗口种类。窗口边界按日历对齐（UTC）。
type WindowKind string

const (
	// WindowDaily 日窗口，边界为 UTC 零点
	WindowDaily WindowKind = "daily"

	// WindowWeekly 周窗口，边界为 UTC 周一零点（ISO 周）
	WindowWeekly WindowKind = "weekly"

	// WindowMonthly 月窗口，边界为 UTC 每月一日零点
	WindowMonthly WindowKind = "monthly"
)

// IsValid 检查窗口种类是否有效
func (k WindowKind) IsValid() bool {
	switch k {
	case WindowDaily, WindowWeekly, WindowMonthly:
		return true
	default:
		return false
	}
}

// windowKinds 按从短到长的固定顺序排列，保证检查顺序确定
var windowKinds = []WindowKind{WindowDaily, WindowWeekly, WindowMonthly}

// Start 返回包含 now 的窗口起点（UTC）。
func (k WindowKind) Start(now time.Time) time.Time {
	now = now.UTC()
	switch k {
	case WindowWeekly:
		day := now.Truncate(24 * time.Hour)
		// time.Weekday 以周日为 0，ISO 周以周一为界
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case WindowMonthly:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return now.Truncate(24 * time.Hour)
	}
}

// Next 返回 start 所在窗口之后的下一个窗口起点，即重置时间。
func (k WindowKind) Next(start time.Time) time.Time {
	switch k {
	case WindowWeekly:
		return start.AddDate(0, 0, 7)
	case WindowMonthly:
		return start.AddDate(0, 1, 0)
	default:
		return start.AddDate(0, 0, 1)
	}
}

// TTL 返回窗口键的存活时长：两个完整窗口。
// 滚动两次后旧计数器即可回收，与 Query 的历史可见性需求对齐。
func (k WindowKind) TTL(now time.Time) time.Duration {
	start := k.Start(now)
	end := k.Next(k.Next(start))
	return end.Sub(now.UTC())
}

// label 返回窗口起点的紧凑标签，用于存储键。
// 同一窗口内的所有请求落在同一个键上，滚动即换键。
func (k WindowKind) label(start time.Time) string {
	switch k {
	case WindowWeekly:
		year, week := start.ISOWeek()
		return fmt.Sprintf("%04dW%02d", year, week)
	case WindowMonthly:
		return start.Format("200601")
	default:
		return start.Format("20060102")
	}
}
