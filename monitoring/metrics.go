package monitoring

import (
	"sync"
	"time"
)

// 延迟窗口大小（保留最近的耗时样本）
const latencyWindow = 1000

// Stats 服务运行统计
type Stats struct {
	StartTime        time.Time        `json:"start_time"`
	Uptime           string           `json:"uptime"`
	AssessmentsTotal int64            `json:"assessments_total"`
	FailuresTotal    int64            `json:"failures_total"`
	TierCounts       map[string]int64 `json:"tier_counts"`
	AvgLatencyMs     float64          `json:"avg_latency_ms"`
	MaxLatencyMs     float64          `json:"max_latency_ms"`
	ModelReloads     int64            `json:"model_reloads"`
}

// Collector 指标收集器
type Collector struct {
	mu           sync.RWMutex
	startTime    time.Time
	assessments  int64
	failures     int64
	tierCounts   map[string]int64
	latencies    []time.Duration
	modelReloads int64
}

// NewCollector 创建指标收集器
func NewCollector() *Collector {
	return &Collector{
		startTime:  time.Now(),
		tierCounts: make(map[string]int64),
	}
}

// RecordAssessment 记录一次完成的评估
func (c *Collector) RecordAssessment(tier string, elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.assessments++
	c.tierCounts[tier]++
	c.latencies = append(c.latencies, elapsed)
	if len(c.latencies) > latencyWindow {
		c.latencies = c.latencies[len(c.latencies)-latencyWindow:]
	}
}

// RecordFailure 记录一次失败
func (c *Collector) RecordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
}

// RecordModelReload 记录模型加载/替换
func (c *Collector) RecordModelReload() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.modelReloads++
}

// Snapshot 导出当前统计
func (c *Collector) Snapshot() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := Stats{
		StartTime:        c.startTime,
		Uptime:           time.Since(c.startTime).String(),
		AssessmentsTotal: c.assessments,
		FailuresTotal:    c.failures,
		TierCounts:       make(map[string]int64, len(c.tierCounts)),
		ModelReloads:     c.modelReloads,
	}
	for tier, count := range c.tierCounts {
		stats.TierCounts[tier] = count
	}

	if len(c.latencies) > 0 {
		var sum, max time.Duration
		for _, d := range c.latencies {
			sum += d
			if d > max {
				max = d
			}
		}
		stats.AvgLatencyMs = float64(sum.Microseconds()) / float64(len(c.latencies)) / 1000
		stats.MaxLatencyMs = float64(max.Microseconds()) / 1000
	}
	return stats
}
