package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Collector owns the gateway's Prometheus metrics. It registers into its own
// registry so tests can scrape in isolation.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	firstTokenTime  *prometheus.HistogramVec
	tokensUsed      *prometheus.CounterVec

	upstreamRequestsTotal *prometheus.CounterVec
	upstreamRetriesTotal  *prometheus.CounterVec

	cacheEventsTotal *prometheus.CounterVec

	armSelectionsTotal *prometheus.CounterVec
	rewardObserved     *prometheus.HistogramVec

	evaluationsTotal *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector builds the metric set under the given namespace.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	c := &Collector{
		registry: registry,
		logger:   logger.With(zap.String("component", "metrics")),
	}

	c.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Served inference requests by function, provider and status.",
		},
		[]string{"function", "provider", "status"},
	)
	c.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "End-to-end request duration.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"function", "provider"},
	)
	c.firstTokenTime = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "first_token_seconds",
			Help:      "Time to first streamed token.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"provider"},
	)
	c.tokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_used_total",
			Help:      "Tokens consumed by provider, model and kind (prompt or completion).",
		},
		[]string{"provider", "model", "kind"},
	)

	c.upstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Upstream provider calls by provider and status.",
		},
		[]string{"provider", "status"},
	)
	c.upstreamRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_retries_total",
			Help:      "Upstream retries by provider.",
		},
		[]string{"provider"},
	)

	c.cacheEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_events_total",
			Help:      "Response cache outcomes (HIT, MISS, N/A).",
		},
		[]string{"status"},
	)

	c.armSelectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "arm_selections_total",
			Help:      "Optimizer arm selections by skill.",
		},
		[]string{"skill"},
	)
	c.rewardObserved = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reward_observed",
			Help:      "Rewards reported to the optimizer.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		},
		[]string{"skill"},
	)

	c.evaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Evaluator executions by method and outcome.",
		},
		[]string{"method", "status"},
	)

	registry.MustRegister(
		c.requestsTotal, c.requestDuration, c.firstTokenTime, c.tokensUsed,
		c.upstreamRequestsTotal, c.upstreamRetriesTotal,
		c.cacheEventsTotal,
		c.armSelectionsTotal, c.rewardObserved,
		c.evaluationsTotal,
	)
	logger.Debug("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// Handler serves the scrape endpoint for this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordRequest records one served inference request.
func (c *Collector) RecordRequest(function, provider string, status int, duration time.Duration) {
	c.requestsTotal.WithLabelValues(function, provider, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(function, provider).Observe(duration.Seconds())
}

// RecordFirstToken records the time to first token of a streamed request.
func (c *Collector) RecordFirstToken(provider string, ttft time.Duration) {
	c.firstTokenTime.WithLabelValues(provider).Observe(ttft.Seconds())
}

// RecordTokens records token consumption.
func (c *Collector) RecordTokens(provider, model string, promptTokens, completionTokens int) {
	c.tokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	c.tokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
}

// RecordUpstream records one upstream provider call.
func (c *Collector) RecordUpstream(provider string, status int) {
	c.upstreamRequestsTotal.WithLabelValues(provider, strconv.Itoa(status)).Inc()
}

// RecordRetry records one upstream retry.
func (c *Collector) RecordRetry(provider string) {
	c.upstreamRetriesTotal.WithLabelValues(provider).Inc()
}

// RecordCacheEvent records a response cache outcome.
func (c *Collector) RecordCacheEvent(status string) {
	c.cacheEventsTotal.WithLabelValues(status).Inc()
}

// RecordArmSelection records an optimizer selection for a skill.
func (c *Collector) RecordArmSelection(skill string) {
	c.armSelectionsTotal.WithLabelValues(skill).Inc()
}

// RecordReward records a reward fed back to the optimizer.
func (c *Collector) RecordReward(skill string, reward float64) {
	c.rewardObserved.WithLabelValues(skill).Observe(reward)
}

// RecordEvaluation records one evaluator execution.
func (c *Collector) RecordEvaluation(method, status string) {
	c.evaluationsTotal.WithLabelValues(method, status).Inc()
}
