package recovery

import (
	"sync"
	"time"

	"github.com/contextlab/ragpipe/types"
)

// History 恢复尝试的有界环形历史。
// 超出容量时丢弃最旧的记录。
type History struct {
	mu       sync.RWMutex
	attempts []types.RecoveryAttempt
	head     int
	size     int
	capacity int
}

// NewHistory 创建恢复历史
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = 10000
	}
	return &History{
		attempts: make([]types.RecoveryAttempt, capacity),
		capacity: capacity,
	}
}

// Record 记录一次恢复尝试
func (h *History) Record(attempt types.RecoveryAttempt) {
	h.mu.Lock()
	defer h.mu.Unlock()

	idx := (h.head + h.size) % h.capacity
	h.attempts[idx] = attempt

	if h.size < h.capacity {
		h.size++
	} else {
		h.head = (h.head + 1) % h.capacity
	}
}

// All 返回全部记录的副本，最旧的在前
func (h *History) All() []types.RecoveryAttempt {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]types.RecoveryAttempt, 0, h.size)
	for i := 0; i < h.size; i++ {
		out = append(out, h.attempts[(h.head+i)%h.capacity])
	}
	return out
}

// ByService 返回指定服务的记录
func (h *History) ByService(service string) []types.RecoveryAttempt {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []types.RecoveryAttempt
	for i := 0; i < h.size; i++ {
		a := h.attempts[(h.head+i)%h.capacity]
		if a.Service == service {
			out = append(out, a)
		}
	}
	return out
}

// Len 返回当前记录数
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.size
}

// Stats 恢复统计汇总
type Stats struct {
	TotalAttempts  int            `json:"total_attempts"`
	SuccessCount   int            `json:"success_count"`
	SuccessRate    float64        `json:"success_rate"`
	MeanDurationMs float64        `json:"mean_duration_ms"`
	ByStrategy     map[string]int `json:"by_strategy"`
	ByCategory     map[string]int `json:"by_category"`
}

// Summarize 汇总全部历史记录
func (h *History) Summarize() Stats {
	return summarize(h.All())
}

// SummarizeSince 汇总指定时刻之后的记录
func (h *History) SummarizeSince(since time.Time) Stats {
	var recent []types.RecoveryAttempt
	for _, a := range h.All() {
		if a.Timestamp.After(since) {
			recent = append(recent, a)
		}
	}
	return summarize(recent)
}

func summarize(attempts []types.RecoveryAttempt) Stats {
	stats := Stats{
		ByStrategy: make(map[string]int),
		ByCategory: make(map[string]int),
	}

	var totalDuration int64
	for _, a := range attempts {
		stats.TotalAttempts++
		if a.Success {
			stats.SuccessCount++
		}
		totalDuration += a.DurationMs
		stats.ByStrategy[a.Strategy]++
		stats.ByCategory[a.ErrorCategory]++
	}

	if stats.TotalAttempts > 0 {
		stats.SuccessRate = float64(stats.SuccessCount) / float64(stats.TotalAttempts)
		stats.MeanDurationMs = float64(totalDuration) / float64(stats.TotalAttempts)
	}

	return stats
}
