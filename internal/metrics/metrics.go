// Package metrics exposes Prometheus collectors for field resolution.
package metrics

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fieldsResolvedTotal   *prometheus.CounterVec
	policyRejectionsTotal *prometheus.CounterVec
	gateDecisionsTotal    *prometheus.CounterVec
	llmCallsTotal         *prometheus.CounterVec
	externalLookupsTotal  *prometheus.CounterVec
	coverageRatio         prometheus.Histogram
	buildDurationSeconds  prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fieldsResolvedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "siteintent_fields_total",
				Help: "Field resolution attempts, labeled by strategy and outcome.",
			},
			[]string{"strategy", "outcome"},
		)

		policyRejectionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "siteintent_policy_rejections_total",
				Help: "Values nulled by policy enforcement, labeled by reason.",
			},
			[]string{"reason"},
		)

		gateDecisionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "siteintent_gate_decisions_total",
				Help: "Gate decisions, labeled by gate, pass and reason.",
			},
			[]string{"gate", "pass", "reason"},
		)

		llmCallsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "siteintent_llm_calls_total",
				Help: "Generative model calls, labeled by stage and outcome.",
			},
			[]string{"stage", "outcome"},
		)

		externalLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "siteintent_external_lookups_total",
				Help: "External registry lookups, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		coverageRatio = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "siteintent_coverage_ratio",
				Help:    "Allow-set coverage of cleaned builds.",
				Buckets: []float64{0.1, 0.25, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
			},
		)

		buildDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "siteintent_build_duration_seconds",
				Help:    "Wall time of one build request.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60},
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveField counts one field attempt
func ObserveField(strategy string, ok bool) {
	Init()
	outcome := "miss"
	if ok {
		outcome = "ok"
	}
	fieldsResolvedTotal.WithLabelValues(strategy, outcome).Inc()
}

// ObserveRejection counts one policy rejection
func ObserveRejection(reason string) {
	Init()
	policyRejectionsTotal.WithLabelValues(reason).Inc()
}

// ObserveGate counts one gate decision
func ObserveGate(gate string, pass bool, reason string) {
	Init()
	gateDecisionsTotal.WithLabelValues(gate, strconv.FormatBool(pass), reason).Inc()
}

// ObserveLLMCall counts one generative call
func ObserveLLMCall(stage, outcome string) {
	Init()
	llmCallsTotal.WithLabelValues(stage, outcome).Inc()
}

// ObserveLookup counts one external lookup
func ObserveLookup(outcome string) {
	Init()
	externalLookupsTotal.WithLabelValues(outcome).Inc()
}

// ObserveCoverage records the coverage of one build
func ObserveCoverage(pct float64) {
	Init()
	coverageRatio.Observe(pct)
}

// ObserveBuild records the duration of one build in seconds
func ObserveBuild(seconds float64) {
	Init()
	buildDurationSeconds.Observe(seconds)
}
