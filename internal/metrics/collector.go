// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 记忆操作指标
	memoryOpsTotal     *prometheus.CounterVec
	memoryOpDuration   *prometheus.HistogramVec
	recallResultCount  prometheus.Histogram
	extractedFactsTotal *prometheus.CounterVec
	extractionDegraded prometheus.Counter

	// 后台任务指标
	decayPassesTotal     prometheus.Counter
	decayedMemoriesTotal prometheus.Counter
	mergedMemoriesTotal  prometheus.Counter

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器。reg 为 nil 时使用默认注册表。
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 记忆操作指标
	c.memoryOpsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_ops_total",
			Help:      "Total number of memory operations",
		},
		[]string{"op", "status"}, // op: add, recall, update, forget, get_all
	)
	c.memoryOpDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "memory_op_duration_seconds",
			Help:      "Memory operation duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"op"},
	)
	c.recallResultCount = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recall_results",
			Help:      "Number of memories returned per recall",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)
	c.extractedFactsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extracted_facts_total",
			Help:      "Total number of extracted facts",
		},
		[]string{"kind"},
	)
	c.extractionDegraded = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_degraded_total",
			Help:      "Add calls that degraded to rule-only extraction",
		},
	)

	// 后台任务指标
	c.decayPassesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decay_passes_total",
			Help:      "Total number of decay passes",
		},
	)
	c.decayedMemoriesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decayed_memories_total",
			Help:      "Total number of memories decayed",
		},
	)
	c.mergedMemoriesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merged_memories_total",
			Help:      "Total number of memories merged by consolidation",
		},
	)

	// 数据库指标
	c.dbConnectionsOpen = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)
	c.dbConnectionsIdle = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// RegisterCacheCounters 注册缓存命中/未命中计数（基于存储层的原子计数器）。
func (c *Collector) RegisterCacheCounters(namespace string, reg prometheus.Registerer, hits, misses func() int64) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of long-term cache hits",
		},
		func() float64 { return float64(hits()) },
	))
	reg.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of long-term cache misses",
		},
		func() float64 { return float64(misses()) },
	))
}

// =============================================================================
// 🎯 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordMemoryOp 记录记忆操作
func (c *Collector) RecordMemoryOp(op, status string, duration time.Duration) {
	c.memoryOpsTotal.WithLabelValues(op, status).Inc()
	c.memoryOpDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordRecallResults 记录一次召回返回的条数
func (c *Collector) RecordRecallResults(n int) {
	c.recallResultCount.Observe(float64(n))
}

// RecordExtractedFact 记录一条抽取出的事实
func (c *Collector) RecordExtractedFact(kind string) {
	c.extractedFactsTotal.WithLabelValues(kind).Inc()
}

// RecordExtractionDegraded 记录一次降级抽取
func (c *Collector) RecordExtractionDegraded() {
	c.extractionDegraded.Inc()
}

// RecordDecayPass 记录一次衰减巡检
func (c *Collector) RecordDecayPass(decayed int) {
	c.decayPassesTotal.Inc()
	c.decayedMemoriesTotal.Add(float64(decayed))
}

// RecordMerged 记录合并掉的记忆条数
func (c *Collector) RecordMerged(n int) {
	c.mergedMemoriesTotal.Add(float64(n))
}

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
