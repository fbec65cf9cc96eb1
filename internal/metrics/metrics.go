// Package metrics exposes Prometheus collectors for the oracle layer.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "oracle_layer"

// Metrics holds the collectors of one process. Each instance owns its registry.
type Metrics struct {
	Registry *prometheus.Registry

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	judgments        *prometheus.CounterVec
	judgeErrors      *prometheus.CounterVec
	judgeDuration    prometheus.Histogram
	guardRejections  *prometheus.CounterVec
	claims           *prometheus.CounterVec
	settleAttempts   prometheus.Histogram
	payoutTokens     *prometheus.CounterVec
	treasuryBalance  prometheus.Gauge
	hoardReserve     prometheus.Gauge
	hoardTotalPayout prometheus.Gauge
	jobRuns          *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
}

// New creates and registers every collector.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "http", Name: "inflight_requests",
			Help: "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "Total number of HTTP requests handled.",
		}, []string{"service", "method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"service", "method", "path"}),
		judgments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "oracle", Name: "judgments_total",
			Help: "Wishes judged, by verdict and payout tier.",
		}, []string{"verdict", "tier"}),
		judgeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "oracle", Name: "judge_errors_total",
			Help: "Failed calls to the judge backend.",
		}, []string{"backend"}),
		judgeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "oracle", Name: "judge_duration_seconds",
			Help:    "Latency of the judge backend.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 8),
		}),
		guardRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "oracle", Name: "guard_rejections_total",
			Help: "Wishes rejected before judgment, by guard.",
		}, []string{"guard"}),
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "claim", Name: "claims_total",
			Help: "Claim requests by outcome.",
		}, []string{"outcome"}),
		settleAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "claim", Name: "settlement_attempts",
			Help:    "Attempts needed to settle a payout.",
			Buckets: []float64{1, 2, 3, 4, 5},
		}),
		payoutTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "claim", Name: "payout_tokens_total",
			Help: "Whole tokens paid out, by tier.",
		}, []string{"tier"}),
		treasuryBalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "treasury", Name: "balance_tokens",
			Help: "Last observed treasury token balance.",
		}),
		hoardReserve: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "hoard", Name: "reserve_tokens",
			Help: "Oil reserve of the hoard account.",
		}),
		hoardTotalPayout: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "hoard", Name: "total_payouts_tokens",
			Help: "Total payouts recorded on the hoard account.",
		}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "job_runs_total",
			Help: "Scheduled job runs.",
		}, []string{"job", "success"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "job_run_duration_seconds",
			Help:    "Duration of scheduled job runs.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		}, []string{"job"}),
	}

	m.Registry.MustRegister(
		m.httpInFlight, m.httpRequests, m.httpDuration,
		m.judgments, m.judgeErrors, m.judgeDuration, m.guardRejections,
		m.claims, m.settleAttempts, m.payoutTokens,
		m.treasuryBalance, m.hoardReserve, m.hoardTotalPayout,
		m.jobRuns, m.jobDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
	return m
}

// Handler returns an HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncrementInFlight() { m.httpInFlight.Inc() }
func (m *Metrics) DecrementInFlight() { m.httpInFlight.Dec() }

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(service, method, path, status string, duration time.Duration) {
	m.httpRequests.WithLabelValues(service, method, path, status).Inc()
	m.httpDuration.WithLabelValues(service, method, path).Observe(duration.Seconds())
}

// RecordJudgment counts a verdict. tier is empty for unworthy wishes.
func (m *Metrics) RecordJudgment(verdict, tier string) {
	if tier == "" {
		tier = "none"
	}
	m.judgments.WithLabelValues(verdict, tier).Inc()
}

func (m *Metrics) RecordJudgeCall(backend string, duration time.Duration, err error) {
	m.judgeDuration.Observe(duration.Seconds())
	if err != nil {
		m.judgeErrors.WithLabelValues(backend).Inc()
	}
}

// RecordGuardRejection counts a wish stopped by cooldown, buffer, breaker or highlander.
func (m *Metrics) RecordGuardRejection(guard string) {
	m.guardRejections.WithLabelValues(guard).Inc()
}

func (m *Metrics) RecordClaim(outcome string) {
	m.claims.WithLabelValues(outcome).Inc()
}

// RecordSettlement records a confirmed payout.
func (m *Metrics) RecordSettlement(tier string, amount uint64, attempts int) {
	m.settleAttempts.Observe(float64(attempts))
	m.payoutTokens.WithLabelValues(tier).Add(float64(amount))
}

func (m *Metrics) SetTreasuryBalance(balance float64) { m.treasuryBalance.Set(balance) }

// SetHoard publishes the hoard account figures.
func (m *Metrics) SetHoard(reserve, totalPayouts uint64) {
	m.hoardReserve.Set(float64(reserve))
	m.hoardTotalPayout.Set(float64(totalPayouts))
}

// RecordJobRun records a scheduled job execution.
func (m *Metrics) RecordJobRun(job string, duration time.Duration, success bool) {
	if job == "" {
		job = "unknown"
	}
	m.jobRuns.WithLabelValues(job, strconv.FormatBool(success)).Inc()
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}
