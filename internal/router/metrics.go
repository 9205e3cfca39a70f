package router

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики конвейера маршрутизации
// ============================================================
//
// Использование:
// - Grafana дашборды для визуализации
// - Alertmanager для уведомлений о блокировках и отказах

// ============ Счётчики конвейера ============

// OrdersDispatched - ордера, реально отправленные на биржу
var OrdersDispatched = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradegate",
		Subsystem: "router",
		Name:      "orders_dispatched_total",
		Help:      "Total number of orders dispatched to exchanges",
	},
	[]string{"exchange", "side", "status"},
)

// OrdersRejected - отказы конвейера по видам
var OrdersRejected = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradegate",
		Subsystem: "router",
		Name:      "orders_rejected_total",
		Help:      "Total number of pipeline rejections by kind",
	},
	[]string{"exchange", "kind"},
)

// IdempotentReplays - повторные execute, отданные из записи без диспатча
var IdempotentReplays = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "tradegate",
		Subsystem: "router",
		Name:      "idempotent_replays_total",
		Help:      "Total number of execute calls answered from an existing order record",
	},
)

// RateLimitDenials - отказы токен-ведра по биржам
var RateLimitDenials = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradegate",
		Subsystem: "router",
		Name:      "rate_limit_denials_total",
		Help:      "Total number of rate limiter denials",
	},
	[]string{"exchange"},
)

// PanicSweeps - запуски экстренной отмены по всем биржам
var PanicSweeps = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "tradegate",
		Subsystem: "router",
		Name:      "panic_sweeps_total",
		Help:      "Total number of panic cancel-all sweeps",
	},
)

// ============ Латентность ============

// DispatchLatency - время вызова адаптера (execute)
var DispatchLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "tradegate",
		Subsystem: "router",
		Name:      "dispatch_latency_ms",
		Help:      "Adapter execute call latency in milliseconds",
		Buckets:   []float64{50, 100, 200, 300, 500, 1000, 2000, 5000, 10000},
	},
	[]string{"exchange"},
)

// PipelineLatency - полное время конвейера без диспатча
var PipelineLatency = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "tradegate",
		Subsystem: "router",
		Name:      "pipeline_latency_ms",
		Help:      "In-memory pipeline latency (validation, sizing, risk, rate) in milliseconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	},
)
