package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ChatDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pulseboard_chat_duration_seconds",
			Help:    "Chat request duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"mode"},
	)

	ChatTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulseboard_chat_total",
			Help: "Total number of chat requests",
		},
		[]string{"mode", "status"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulseboard_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	UngroundedReplies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulseboard_ungrounded_replies_total",
			Help: "Assistant replies containing figures absent from the data context",
		},
		[]string{"action"},
	)

	DataSourceToggles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulseboard_datasource_toggles_total",
			Help: "Data source connection toggles by resulting status",
		},
		[]string{"status"},
	)

	DataSourceSyncs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulseboard_datasource_syncs_total",
			Help: "Background data source syncs by outcome",
		},
		[]string{"outcome"},
	)

	ReportOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulseboard_report_operations_total",
			Help: "Report operations by kind",
		},
		[]string{"operation"},
	)

	InsightsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulseboard_insights_ingested_total",
			Help: "Insights ingested by severity",
		},
		[]string{"severity"},
	)

	MetricSamplesRecorded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pulseboard_metric_samples_recorded_total",
			Help: "Metric samples written",
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulseboard_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulseboard_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)
)

var initOnce sync.Once

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			ChatDuration,
			ChatTotal,
			LLMTokensUsed,
			UngroundedReplies,
			DataSourceToggles,
			DataSourceSyncs,
			ReportOperations,
			InsightsIngested,
			MetricSamplesRecorded,
			CacheHits,
			CacheMisses,
		)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
