// Package metrics 冲突引擎的 Prometheus 指标
//
// 使用独立的 Registry，不污染全局 DefaultRegisterer，便于测试中重复创建。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "expo_engine"

// Metrics 引擎指标集合；nil 接收者上的方法均为空操作
type Metrics struct {
	registry *prometheus.Registry

	detectionRuns     *prometheus.CounterVec
	detectionDuration *prometheus.HistogramVec
	conflictsFound    *prometheus.CounterVec
	conflictsCreated  *prometheus.CounterVec
	transitions       *prometheus.CounterVec
	itemErrors        *prometheus.CounterVec
	sweepEscalations  prometheus.Counter
	scheduledTotal    *prometheus.CounterVec
}

// New 创建指标集合并注册到新的 Registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		detectionRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detection_runs_total",
			Help:      "冲突检测运行次数",
		}, []string{"detector", "result"}),
		detectionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "detection_duration_seconds",
			Help:      "冲突检测耗时",
			Buckets:   prometheus.DefBuckets,
		}, []string{"detector"}),
		conflictsFound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflicts_found_total",
			Help:      "检测到的冲突数（含已存在的活跃冲突）",
		}, []string{"kind"}),
		conflictsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflicts_created_total",
			Help:      "新落库的冲突数",
		}, []string{"kind", "severity"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflict_transitions_total",
			Help:      "冲突状态迁移次数",
		}, []string{"conflict_type", "action", "result"}),
		itemErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "item_errors_total",
			Help:      "单条记录处理失败次数",
		}, []string{"operation"}),
		sweepEscalations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_escalations_total",
			Help:      "巡检强制升级的过期冲突数",
		}),
		scheduledTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auto_schedule_activities_total",
			Help:      "自动排程处理的活动数",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.detectionRuns,
		m.detectionDuration,
		m.conflictsFound,
		m.conflictsCreated,
		m.transitions,
		m.itemErrors,
		m.sweepEscalations,
		m.scheduledTotal,
	)
	return m
}

// Handler /metrics 暴露端点
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry 供测试读取指标
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveDetection 记录一次检测运行
func (m *Metrics) ObserveDetection(detector string, started time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.detectionRuns.WithLabelValues(detector, result).Inc()
	m.detectionDuration.WithLabelValues(detector).Observe(time.Since(started).Seconds())
}

// ConflictFound 检测到一条冲突
func (m *Metrics) ConflictFound(kind string) {
	if m == nil {
		return
	}
	m.conflictsFound.WithLabelValues(kind).Inc()
}

// ConflictCreated 新建一条冲突记录
func (m *Metrics) ConflictCreated(kind, severity string) {
	if m == nil {
		return
	}
	m.conflictsCreated.WithLabelValues(kind, severity).Inc()
}

// Transition 记录状态迁移结果
func (m *Metrics) Transition(conflictType, action string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "rejected"
	}
	m.transitions.WithLabelValues(conflictType, action, result).Inc()
}

// ItemErrors 累加单条失败数
func (m *Metrics) ItemErrors(operation string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.itemErrors.WithLabelValues(operation).Add(float64(n))
}

// SweepEscalated 巡检升级数
func (m *Metrics) SweepEscalated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sweepEscalations.Add(float64(n))
}

// Scheduled 自动排程结果
func (m *Metrics) Scheduled(scheduled, unscheduled int) {
	if m == nil {
		return
	}
	m.scheduledTotal.WithLabelValues("scheduled").Add(float64(scheduled))
	m.scheduledTotal.WithLabelValues("unscheduled").Add(float64(unscheduled))
}
