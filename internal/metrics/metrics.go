// ============================================================================
// Workshop Queue Metrics - Prometheus 監控指標
// ============================================================================
//
// Package: internal/metrics
// 文件: metrics.go
// 功能: 收集並暴露控制器的運行指標
//
// 指標分類:
//
//   1. 計數器 (Counter)：
//      - workshop_stage_transitions_total{stage}: 進入各階段的次數
//      - workshop_crafts_taken_total: 從佇列取出的製作數
//      - workshop_crafts_collected_total: 已領取的成品數
//      - workshop_contributions_total: 材料繳交次數
//      - workshop_run_aborts_total{reason}: 因無法恢復的狀況中止執行的次數
//
//   2. 狀態指標 (Gauge)：
//      - workshop_queue_remaining: 佇列剩餘數量（不含進行中的製作）
//      - workshop_running: 控制器是否在執行中（0/1）
//
//   3. 分佈 (Histogram)：
//      - workshop_resolver_duration_seconds: 材料解析耗時
//
// Prometheus 查詢示例:
//
//   # 每小時完成的製作
//   increase(workshop_crafts_collected_total[1h])
//
//   # 中止原因分佈
//   sum by (reason) (workshop_run_aborts_total)
//
// 所有方法都可以在 nil *Collector 上呼叫（不收集指標）。
//
// ============================================================================

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector Prometheus 指標收集器
type Collector struct {
	stageTransitions *prometheus.CounterVec
	craftsTaken      prometheus.Counter
	craftsCollected  prometheus.Counter
	contributions    prometheus.Counter
	runAborts        *prometheus.CounterVec

	queueRemaining prometheus.Gauge
	running        prometheus.Gauge

	resolverDuration prometheus.Histogram
}

// NewCollector 建立指標收集器並註冊到 prometheus.DefaultRegisterer
func NewCollector() *Collector {
	c := &Collector{
		stageTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workshop_stage_transitions_total",
			Help: "Number of times each orchestration stage was entered",
		}, []string{"stage"}),
		craftsTaken: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "workshop_crafts_taken_total",
			Help: "Total number of crafts taken from the queue",
		}),
		craftsCollected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "workshop_crafts_collected_total",
			Help: "Total number of finished products collected",
		}),
		contributions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "workshop_contributions_total",
			Help: "Total number of confirmed material contributions",
		}),
		runAborts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workshop_run_aborts_total",
			Help: "Runs stopped because of an unrecoverable precondition",
		}, []string{"reason"}),
		queueRemaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "workshop_queue_remaining",
			Help: "Total quantity left in the queue, excluding the current craft",
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "workshop_running",
			Help: "1 while the orchestrator is not stopped",
		}),
		resolverDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "workshop_resolver_duration_seconds",
			Help:    "Time spent resolving material dependencies",
			Buckets: prometheus.DefBuckets,
		}),
	}

	prometheus.MustRegister(
		c.stageTransitions,
		c.craftsTaken,
		c.craftsCollected,
		c.contributions,
		c.runAborts,
		c.queueRemaining,
		c.running,
		c.resolverDuration,
	)

	return c
}

// RecordTransition 記錄進入某個階段
func (c *Collector) RecordTransition(stage string) {
	if c == nil {
		return
	}
	c.stageTransitions.WithLabelValues(stage).Inc()
}

// RecordCraftTaken 記錄從佇列取出一個製作
func (c *Collector) RecordCraftTaken() {
	if c == nil {
		return
	}
	c.craftsTaken.Inc()
}

// RecordCraftCollected 記錄領取一個成品
func (c *Collector) RecordCraftCollected() {
	if c == nil {
		return
	}
	c.craftsCollected.Inc()
}

// RecordContribution 記錄一次確認的繳交
func (c *Collector) RecordContribution() {
	if c == nil {
		return
	}
	c.contributions.Inc()
}

// RecordAbort 記錄中止原因
func (c *Collector) RecordAbort(reason string) {
	if c == nil {
		return
	}
	c.runAborts.WithLabelValues(reason).Inc()
}

// UpdateQueueStats 更新佇列與執行狀態
func (c *Collector) UpdateQueueStats(remaining int, running bool) {
	if c == nil {
		return
	}
	c.queueRemaining.Set(float64(remaining))
	if running {
		c.running.Set(1)
	} else {
		c.running.Set(0)
	}
}

// ObserveResolve 記錄一次材料解析的耗時
func (c *Collector) ObserveResolve(seconds float64) {
	if c == nil {
		return
	}
	c.resolverDuration.Observe(seconds)
}

// Handler Prometheus 抓取端點
func Handler() http.Handler {
	return promhttp.Handler()
}
