package xquota

import (
	"testing"
	"time"
)

func TestWindowDaily(t *testing.T) {
	now := time.Date(2025, 3, 15, 17, 42, 3, 0, time.UTC)

	start := WindowDaily.Start(now)
	if want := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC); !start.Equal(want) {
		t.Errorf("daily start: got %v, want %v", start, want)
	}
	if next := WindowDaily.Next(start); !next.Equal(start.AddDate(0, 0, 1)) {
		t.Errorf("daily next: got %v", next)
	}
	if label := WindowDaily.label(start); label != "20250315" {
		t.Errorf("daily label: got %q", label)
	}
}

func TestWindowWeekly(t *testing.T) {
	// 2025-03-15 是周六，ISO 周起点应为 3 月 10 日周一
	now := time.Date(2025, 3, 15, 17, 0, 0, 0, time.UTC)

	start := WindowWeekly.Start(now)
	if want := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC); !start.Equal(want) {
		t.Errorf("weekly start: got %v, want %v", start, want)
	}

	// 周一当天属于当周
	monday := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	if got := WindowWeekly.Start(monday); !got.Equal(monday) {
		t.Errorf("monday should be its own week start, got %v", got)
	}

	// 周日属于上一个周一开始的周
	sunday := time.Date(2025, 3, 16, 23, 59, 0, 0, time.UTC)
	if got := WindowWeekly.Start(sunday); !got.Equal(start) {
		t.Errorf("sunday week start: got %v, want %v", got, start)
	}
}

func TestWindowMonthly(t *testing.T) {
	now := time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC)

	start := WindowMonthly.Start(now)
	if want := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC); !start.Equal(want) {
		t.Errorf("monthly start: got %v, want %v", start, want)
	}
	if next := WindowMonthly.Next(start); !next.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("monthly next crosses year: got %v", next)
	}
	if label := WindowMonthly.label(start); label != "202512" {
		t.Errorf("monthly label: got %q", label)
	}
}

func TestWindowTTL_CoversTwoWindows(t *testing.T) {
	now := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

	ttl := WindowDaily.TTL(now)
	// 当天剩余 12h + 下一整天 24h
	if want := 36 * time.Hour; ttl != want {
		t.Errorf("daily ttl: got %v, want %v", ttl, want)
	}
}

func TestWindowKind_IsValid(t *testing.T) {
	for _, k := range windowKinds {
		if !k.IsValid() {
			t.Errorf("%s should be valid", k)
		}
	}
	if WindowKind("hourly").IsValid() {
		t.Error("hourly should be invalid")
	}
}
