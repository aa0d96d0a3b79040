// Package monitoring 提供预测服务的运行指标
package monitoring

import (
	"fmt"
	"math"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// MetricType 指标类型
type MetricType string

const (
	MetricTypeCounter MetricType = "counter"
	MetricTypeGauge   MetricType = "gauge"
	MetricTypeSummary MetricType = "summary"
)

// Outcome labels for prediction requests.
const (
	OutcomeSuccess          = "success"
	OutcomeMissingField     = "missing_field"
	OutcomeInvalidInput     = "invalid_input"
	OutcomeValidation       = "validation"
	OutcomeEncoding         = "encoding"
	OutcomeModelUnavailable = "model_unavailable"
	OutcomeInternal         = "internal"
)

// latency 延迟摘要
type latency struct {
	count int64
	sum   float64
	min   float64
	max   float64
}

func (l *latency) observe(seconds float64) {
	if l.count == 0 || seconds < l.min {
		l.min = seconds
	}
	if seconds > l.max {
		l.max = seconds
	}
	l.count++
	l.sum += seconds
}

// MetricsCollector 指标收集器
type MetricsCollector struct {
	mu         sync.RWMutex
	outcomes   map[string]int64
	cacheHits  int64
	latency    latency
	generation uint64
	reloads    int64

	startTime time.Time
}

// NewMetricsCollector 创建指标收集器
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		outcomes:  make(map[string]int64),
		startTime: time.Now(),
	}
}

// RecordPrediction 记录一次预测请求
func (mc *MetricsCollector) RecordPrediction(outcome string, elapsed time.Duration, cached bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.outcomes[outcome]++
	mc.latency.observe(elapsed.Seconds())
	if cached {
		mc.cacheHits++
	}
}

// RecordReload 记录模型重新加载
func (mc *MetricsCollector) RecordReload(generation uint64) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.reloads++
	mc.generation = generation
}

// SetGeneration 设置当前模型版本
func (mc *MetricsCollector) SetGeneration(generation uint64) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.generation = generation
}

// Count returns how many predictions ended with outcome.
func (mc *MetricsCollector) Count(outcome string) int64 {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.outcomes[outcome]
}

// GetSummary 获取指标摘要
func (mc *MetricsCollector) GetSummary() map[string]interface{} {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	outcomes := make(map[string]int64, len(mc.outcomes))
	for k, v := range mc.outcomes {
		outcomes[k] = v
	}
	average := 0.0
	if mc.latency.count > 0 {
		average = mc.latency.sum / float64(mc.latency.count)
	}

	return map[string]interface{}{
		"outcomes":   outcomes,
		"cache_hits": mc.cacheHits,
		"latency": map[string]interface{}{
			"count":   mc.latency.count,
			"average": average,
			"min":     mc.latency.min,
			"max":     mc.latency.max,
		},
		"model_generation": mc.generation,
		"model_reloads":    mc.reloads,
	}
}

// ExportPrometheus 导出Prometheus格式
func (mc *MetricsCollector) ExportPrometheus() string {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	var b strings.Builder
	writeHeader(&b, "insurecharge_predictions_total", MetricTypeCounter, "Prediction requests by outcome")
	names := make([]string, 0, len(mc.outcomes))
	for name := range mc.outcomes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "insurecharge_predictions_total{outcome=%q} %d\n", name, mc.outcomes[name])
	}

	writeHeader(&b, "insurecharge_prediction_cache_hits_total", MetricTypeCounter, "Predictions served from the cache")
	fmt.Fprintf(&b, "insurecharge_prediction_cache_hits_total %d\n", mc.cacheHits)

	writeHeader(&b, "insurecharge_prediction_duration_seconds", MetricTypeSummary, "Prediction handling time")
	fmt.Fprintf(&b, "insurecharge_prediction_duration_seconds_sum %s\n", formatFloat(mc.latency.sum))
	fmt.Fprintf(&b, "insurecharge_prediction_duration_seconds_count %d\n", mc.latency.count)

	writeHeader(&b, "insurecharge_model_generation", MetricTypeGauge, "Generation of the model assets in service")
	fmt.Fprintf(&b, "insurecharge_model_generation %d\n", mc.generation)

	writeHeader(&b, "insurecharge_model_reloads_total", MetricTypeCounter, "Successful asset reloads")
	fmt.Fprintf(&b, "insurecharge_model_reloads_total %d\n", mc.reloads)

	writeHeader(&b, "insurecharge_goroutines", MetricTypeGauge, "Number of goroutines")
	fmt.Fprintf(&b, "insurecharge_goroutines %d\n", runtime.NumGoroutine())

	return b.String()
}

func writeHeader(b *strings.Builder, name string, kind MetricType, help string) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s %s\n", name, kind)
}

func formatFloat(v float64) string {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return "NaN"
	}
	return fmt.Sprintf("%g", v)
}

// GetUptime 获取运行时间
func (mc *MetricsCollector) GetUptime() time.Duration {
	return time.Since(mc.startTime)
}

// GetSystemStats 获取系统统计
func (mc *MetricsCollector) GetSystemStats() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]interface{}{
		"uptime":     mc.GetUptime().String(),
		"goroutines": runtime.NumGoroutine(),
		"memory": map[string]interface{}{
			"alloc":       m.Alloc,
			"sys":         m.Sys,
			"heap_alloc":  m.HeapAlloc,
			"heap_inuse":  m.HeapInuse,
			"gc_count":    m.NumGC,
			"gc_pause_ns": m.PauseTotalNs,
		},
		"num_cpu": runtime.NumCPU(),
	}
}
