package xadmit

import (
	"context"
	"sync"
)

// Journal 裁决日志接口。
// Record 的失败由门面记录告警但不影响请求结果。
type Journal interface {
	// Record 记录一次裁决
	Record(ctx context.Context, d *Decision) error

	// Close 释放日志自有资源
	Close(ctx context.Context) error
}

// MemoryJournal Journal 接口的内存实现，保留最近 limit 条裁决。
// 适用于单进程场景、测试和调试。
type MemoryJournal struct {
	mu        sync.Mutex
	limit     int
	decisions []Decision
}

// defaultJournalLimit 内存日志默认保留条数
const defaultJournalLimit = 1024

// NewMemoryJournal 创建内存日志，limit <= 0 时使用默认保留条数
func NewMemoryJournal(limit int) *MemoryJournal {
	if limit <= 0 {
		limit = defaultJournalLimit
	}
	return &MemoryJournal{limit: limit}
}

// Record 记录一次裁决，超出保留条数时丢弃最旧的
func (j *MemoryJournal) Record(_ context.Context, d *Decision) error {
	if d == nil {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.decisions = append(j.decisions, *d)
	if len(j.decisions) > j.limit {
		j.decisions = j.decisions[len(j.decisions)-j.limit:]
	}
	return nil
}

// List 返回已记录裁决的快照，从旧到新
func (j *MemoryJournal) List() []Decision {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]Decision(nil), j.decisions...)
}

// Close 清空日志
func (j *MemoryJournal) Close(context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.decisions = nil
	return nil
}

// 确保 MemoryJournal 实现了 Journal 接口
var _ Journal = (*MemoryJournal)(nil)
