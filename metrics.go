package main

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricsNamespace = "relay"

	outcomeAccepted         = "accepted"
	outcomeMissingToken     = "missing_token"
	outcomeReplayedToken    = "replayed_token"
	outcomeMalformedPayload = "malformed_payload"
	outcomeInternalError    = "internal_error"
	outcomeInvalidApiKey    = "invalid_api_key"
	outcomeRateLimited      = "rate_limited"
)

type relayMetrics struct {
	registry         *prometheus.Registry
	dispatchOutcomes *prometheus.CounterVec
	trackerResets    prometheus.Counter
}

// newRelayMetrics registers collectors on a private registry so tests can build as many as they like.
func newRelayMetrics(tracker *tokenTracker, limiter *clientLimiter) *relayMetrics {
	registry := prometheus.NewRegistry()
	metrics := &relayMetrics{
		registry: registry,
		dispatchOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "dispatch_requests_total",
			Help:      "Dispatch requests by outcome.",
		}, []string{"outcome"}),
		trackerResets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "tracker_resets_total",
			Help:      "Times the used-token registry was cleared for exceeding its size threshold.",
		}),
	}
	registry.MustRegister(
		metrics.dispatchOutcomes,
		metrics.trackerResets,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "tracker_tokens",
			Help:      "One-time tokens currently held in the used-token registry.",
		}, func() float64 { return float64(tracker.count()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "rate_limited_clients",
			Help:      "Client addresses currently holding a rate limiter bucket.",
		}, func() float64 { return float64(limiter.size()) }),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return metrics
}

func (metrics *relayMetrics) observeDispatch(dispatchFailure error) {
	metrics.dispatchOutcomes.WithLabelValues(dispatchOutcome(dispatchFailure)).Inc()
}

func (metrics *relayMetrics) observeRejection(outcome string) {
	metrics.dispatchOutcomes.WithLabelValues(outcome).Inc()
}

func (metrics *relayMetrics) handler() http.Handler {
	return promhttp.HandlerFor(metrics.registry, promhttp.HandlerOpts{})
}

func dispatchOutcome(dispatchFailure error) string {
	switch {
	case dispatchFailure == nil:
		return outcomeAccepted
	case errors.Is(dispatchFailure, errMissingToken):
		return outcomeMissingToken
	case errors.Is(dispatchFailure, errReplayedToken):
		return outcomeReplayedToken
	case errors.Is(dispatchFailure, errMalformedPayload):
		return outcomeMalformedPayload
	default:
		return outcomeInternalError
	}
}
