// Package ensemble iterates a routing decision's endpoint chain against
// the inference client, recording per-model metrics (component E).
package ensemble

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/itsneelabh/maze/inference"
	"github.com/itsneelabh/maze/router"
	"github.com/prometheus/client_golang/prometheus"
)

// Backend iterates [primary] + fallback_chain[:maxFallbackAttempts],
// dispatching inference.Client.Generate against each endpoint in turn.
type Backend struct {
	maxFallbackAttempts int
	newClient           func(router.Endpoint) *inference.Client

	metricsMu sync.Mutex
	metrics   map[string]*ModelMetrics

	requestsTotal  *prometheus.CounterVec
	successesTotal *prometheus.CounterVec
	failuresTotal  *prometheus.CounterVec
	latency        *prometheus.HistogramVec
}

// ModelMetrics is the in-memory record kept per model name (spec.md §4.4).
type ModelMetrics struct {
	Requests           int64
	Successes          int64
	Failures           int64
	CumulativeLatency  time.Duration
	CumulativeConfidence float64
}

// SuccessRate returns Successes/Requests, or 0 if no requests were made.
func (m ModelMetrics) SuccessRate() float64 {
	if m.Requests == 0 {
		return 0
	}
	return float64(m.Successes) / float64(m.Requests)
}

// MeanLatency returns the average latency across all requests.
func (m ModelMetrics) MeanLatency() time.Duration {
	if m.Requests == 0 {
		return 0
	}
	return m.CumulativeLatency / time.Duration(m.Requests)
}

// NewBackend builds an ensemble Backend. newClient constructs (or
// retrieves a pooled) inference.Client for a given routed endpoint.
// maxFallbackAttempts bounds how many fallback endpoints are tried after
// the primary (spec.md §4.4).
func NewBackend(maxFallbackAttempts int, newClient func(router.Endpoint) *inference.Client) *Backend {
	return &Backend{
		maxFallbackAttempts: maxFallbackAttempts,
		newClient:           newClient,
		metrics:             make(map[string]*ModelMetrics),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "maze_ensemble_requests_total",
			Help: "Inference requests issued per model.",
		}, []string{"model"}),
		successesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "maze_ensemble_successes_total",
			Help: "Inference requests that succeeded, per model.",
		}, []string{"model"}),
		failuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "maze_ensemble_failures_total",
			Help: "Inference requests that failed, per model.",
		}, []string{"model"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "maze_ensemble_latency_seconds",
			Help: "Inference request latency, per model.",
		}, []string{"model"}),
	}
}

// Describe implements prometheus.Collector.
func (b *Backend) Describe(ch chan<- *prometheus.Desc) {
	b.requestsTotal.Describe(ch)
	b.successesTotal.Describe(ch)
	b.failuresTotal.Describe(ch)
	b.latency.Describe(ch)
}

// Collect implements prometheus.Collector.
func (b *Backend) Collect(ch chan<- prometheus.Metric) {
	b.requestsTotal.Collect(ch)
	b.successesTotal.Collect(ch)
	b.failuresTotal.Collect(ch)
	b.latency.Collect(ch)
}

// GenerateRouted iterates a precomputed routing decision's primary and
// bounded fallback chain, returning the first accepted response. On
// cancellation it aborts the in-flight attempt and does not start a new
// one (spec.md §4.4 "Cancellation"). Callers obtain decision via
// router.Router.Route before calling this.
func (b *Backend) GenerateRouted(ctx context.Context, req inference.Request, decision router.Decision) (*inference.Response, error) {
	endpoints := decision.AllEndpoints()
	if b.maxFallbackAttempts >= 0 && len(endpoints) > 1+b.maxFallbackAttempts {
		endpoints = endpoints[:1+b.maxFallbackAttempts]
	}

	var lastErr error
	attempts := 0
	for _, ep := range endpoints {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		attempts++

		client := b.newClient(ep)
		start := time.Now()
		resp, err := client.Generate(ctx, requestFor(req, ep))
		elapsed := time.Since(start)

		if err != nil {
			b.record(ep.Name, false, elapsed, 0)
			lastErr = err
			continue
		}

		b.record(ep.Name, true, elapsed, resp.Confidence())
		return resp, nil
	}

	return nil, fmt.Errorf("ensemble: all %d attempt(s) failed: %w", attempts, lastErr)
}

func requestFor(req inference.Request, ep router.Endpoint) inference.Request {
	out := req
	out.Model = ep.Model
	return out
}

func (b *Backend) record(model string, success bool, elapsed time.Duration, confidence float64) {
	b.metricsMu.Lock()
	defer b.metricsMu.Unlock()

	m, ok := b.metrics[model]
	if !ok {
		m = &ModelMetrics{}
		b.metrics[model] = m
	}
	m.Requests++
	m.CumulativeLatency += elapsed
	if success {
		m.Successes++
		m.CumulativeConfidence += confidence
	} else {
		m.Failures++
	}

	b.requestsTotal.WithLabelValues(model).Inc()
	b.latency.WithLabelValues(model).Observe(elapsed.Seconds())
	if success {
		b.successesTotal.WithLabelValues(model).Inc()
	} else {
		b.failuresTotal.WithLabelValues(model).Inc()
	}
}

// Metrics returns a snapshot of per-model metrics.
func (b *Backend) Metrics() map[string]ModelMetrics {
	b.metricsMu.Lock()
	defer b.metricsMu.Unlock()

	out := make(map[string]ModelMetrics, len(b.metrics))
	for k, v := range b.metrics {
		out[k] = *v
	}
	return out
}
