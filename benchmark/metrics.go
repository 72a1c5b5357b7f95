// Package benchmark - Functionality for running detector benchmarks.
package benchmark

import (
	"math"
	"sort"
	"time"
)

// PerformanceMetrics captures detailed performance data
type PerformanceMetrics struct {
	Scenario        Scenario      `json:"scenario"`
	Timestamp       time.Time     `json:"timestamp"`
	TotalDuration   time.Duration `json:"total_duration"`
	Preprocess      StageStats    `json:"preprocess"`
	Inference       StageStats    `json:"inference"`
	Postprocess     StageStats    `json:"postprocess"`
	FramesPerSecond float64       `json:"frames_per_second"`
	MemoryStats     MemoryMetrics `json:"memory_stats"`
	CPUStats        CPUMetrics    `json:"cpu_stats"`
	DetectionCount  int           `json:"detection_count"`
	ErrorRate       float64       `json:"error_rate"`
}

// MemoryMetrics captures memory usage statistics
type MemoryMetrics struct {
	AllocBytes      uint64 `json:"alloc_bytes"`
	TotalAllocBytes uint64 `json:"total_alloc_bytes"`
	SysBytes        uint64 `json:"sys_bytes"`
	NumGC           uint32 `json:"num_gc"`
	HeapAllocBytes  uint64 `json:"heap_alloc_bytes"`
	HeapSysBytes    uint64 `json:"heap_sys_bytes"`
}

// CPUMetrics captures CPU usage statistics
type CPUMetrics struct {
	NumCPU     int `json:"num_cpu"`
	Goroutines int `json:"goroutines"`
}

// StageStats summarises the durations recorded for one stage.
type StageStats struct {
	Count int64         `json:"count"`
	Total time.Duration `json:"total"`
	Mean  time.Duration `json:"mean"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	P50   time.Duration `json:"p50"`
	P95   time.Duration `json:"p95"`
}

// TimeTracker tracks operation timing statistics.
// It is not safe for concurrent use.
type TimeTracker struct {
	durations []time.Duration
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	count     int64
}

// Record adds one sample.
func (t *TimeTracker) Record(d time.Duration) {
	if t.count == 0 || d < t.minTime {
		t.minTime = d
	}
	if d > t.maxTime {
		t.maxTime = d
	}
	t.durations = append(t.durations, d)
	t.totalTime += d
	t.count++
}

// Stats returns the summary of all recorded samples.
func (t *TimeTracker) Stats() StageStats {
	if t.count == 0 {
		return StageStats{}
	}

	sorted := make([]time.Duration, len(t.durations))
	copy(sorted, t.durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	return StageStats{
		Count: t.count,
		Total: t.totalTime,
		Mean:  t.totalTime / time.Duration(t.count),
		Min:   t.minTime,
		Max:   t.maxTime,
		P50:   percentile(sorted, 0.50),
		P95:   percentile(sorted, 0.95),
	}
}

// percentile uses the nearest-rank method on sorted samples.
func percentile(sorted []time.Duration, p float64) time.Duration {
	rank := int(math.Ceil(p*float64(len(sorted))-1e-9)) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}

	return sorted[rank]
}
