package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	pipelineRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlquery_pipeline_requests_total",
			Help: "Questions processed by the pipeline, by outcome.",
		},
		[]string{"outcome"},
	)
	llmCallDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nlquery_llm_call_duration_seconds",
			Help:    "Latency of LLM completions by pipeline stage.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40},
		},
		[]string{"stage", "status"},
	)
	queryDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nlquery_query_duration_seconds",
			Help:    "Latency of generated query execution.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	policyRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlquery_policy_rejections_total",
			Help: "Generated statements rejected by the query policy, by reason.",
		},
		[]string{"reason"},
	)
	historyExchanges = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "nlquery_history_exchanges",
			Help: "Chat exchanges currently retained across sessions.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		pipelineRequestsTotal,
		llmCallDurationSeconds,
		queryDurationSeconds,
		policyRejectionsTotal,
		historyExchanges,
	)
}

func ObservePipelineOutcome(outcome string) {
	pipelineRequestsTotal.WithLabelValues(outcome).Inc()
}

func ObserveLLMCall(stage string, err error, elapsed time.Duration) {
	llmCallDurationSeconds.WithLabelValues(stage, statusLabel(err)).Observe(elapsed.Seconds())
}

func ObserveQuery(err error, elapsed time.Duration) {
	queryDurationSeconds.WithLabelValues(statusLabel(err)).Observe(elapsed.Seconds())
}

func IncrementPolicyRejection(reason string) {
	policyRejectionsTotal.WithLabelValues(reason).Inc()
}

func SetHistoryExchanges(total int) {
	if total < 0 {
		total = 0
	}
	historyExchanges.Set(float64(total))
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
