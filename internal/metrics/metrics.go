// Package metrics 提供Prometheus监控指标
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors 全部指标
type Collectors struct {
	registry *prometheus.Registry

	requestTotal       *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	generationTotal    *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	backtracks         prometheus.Histogram
	unsatisfied        *prometheus.CounterVec
	violations         *prometheus.CounterVec
	substitutions      *prometheus.CounterVec
	uncoveredSlots     prometheus.Gauge
	fairnessGini       prometheus.Gauge
}

var (
	collectorsOnce sync.Once
	defaultSet     *Collectors
)

// Default 获取全局指标
func Default() *Collectors {
	collectorsOnce.Do(func() {
		defaultSet = New()
	})
	return defaultSet
}

// New 创建独立注册表的指标集
func New() *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kebiao_http_requests_total",
			Help: "HTTP请求总数",
		}, []string{"method", "path", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kebiao_http_request_duration_seconds",
			Help:    "HTTP请求延迟",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"method", "path"}),
		generationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kebiao_schedule_generation_total",
			Help: "排课次数",
		}, []string{"mode", "status"}),
		generationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kebiao_schedule_generation_duration_seconds",
			Help:    "排课耗时",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		}, []string{"mode"}),
		backtracks: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kebiao_schedule_backtracks",
			Help:    "每次排课的回溯次数",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		unsatisfied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kebiao_unsatisfied_requirements_total",
			Help: "未能排入的课次",
		}, []string{"mode"}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kebiao_constraint_violations_total",
			Help: "课表约束违反次数",
		}, []string{"constraint_type", "severity"}),
		substitutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kebiao_substitutions_total",
			Help: "代课记录状态变更次数",
		}, []string{"status"}),
		uncoveredSlots: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kebiao_uncovered_slots",
			Help: "最近一次计算的未覆盖课节数",
		}),
		fairnessGini: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kebiao_faculty_workload_gini",
			Help: "教师课时基尼系数",
		}),
	}
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.requestTotal, c.requestDuration,
		c.generationTotal, c.generationDuration, c.backtracks, c.unsatisfied,
		c.violations, c.substitutions, c.uncoveredSlots, c.fairnessGini,
	)
	return c
}

// Registry 返回注册表
func (c *Collectors) Registry() *prometheus.Registry {
	return c.registry
}

// Handler 返回 /metrics 处理器
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordRequest 记录请求指标
func (c *Collectors) RecordRequest(method, path string, status int, duration time.Duration) {
	c.requestTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordGeneration 记录一次排课
func (c *Collectors) RecordGeneration(mode string, success bool, duration time.Duration, backtracks, unsatisfied int) {
	status := "success"
	if !success {
		status = "partial"
	}
	c.generationTotal.WithLabelValues(mode, status).Inc()
	c.generationDuration.WithLabelValues(mode).Observe(duration.Seconds())
	c.backtracks.Observe(float64(backtracks))
	c.unsatisfied.WithLabelValues(mode).Add(float64(unsatisfied))
}

// RecordGenerationFailure 记录排课失败（未提交）
func (c *Collectors) RecordGenerationFailure(mode string) {
	c.generationTotal.WithLabelValues(mode, "failure").Inc()
}

// RecordViolation 记录约束违反
func (c *Collectors) RecordViolation(constraintType, severity string) {
	c.violations.WithLabelValues(constraintType, severity).Inc()
}

// RecordSubstitution 记录代课状态
func (c *Collectors) RecordSubstitution(status string) {
	c.substitutions.WithLabelValues(status).Inc()
}

// SetUncoveredSlots 设置未覆盖课节数
func (c *Collectors) SetUncoveredSlots(n int) {
	c.uncoveredSlots.Set(float64(n))
}

// SetFairnessGini 设置课时基尼系数
func (c *Collectors) SetFairnessGini(gini float64) {
	c.fairnessGini.Set(gini)
}
