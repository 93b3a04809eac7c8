package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

const (
	dispatchRoute = "/DevOps"
	metricsRoute  = "/metrics"
	healthRoute   = "/healthz"
)

// relayService is everything a router needs; serve builds one per process.
type relayService struct {
	config   serverConfig
	tracker  *tokenTracker
	issuer   *tokenIssuer
	metrics  *relayMetrics
	limiter  *clientLimiter
	dispatch *dispatchHandler
}

func newRelayService(gatewayConfig serverConfig) (*relayService, error) {
	issuer, issuerError := newTokenIssuer(gatewayConfig.Issuer)
	if issuerError != nil {
		return nil, issuerError
	}
	tracker := newTokenTracker()
	limiter := newClientLimiter(gatewayConfig.RateLimitPerMinute)
	metrics := newRelayMetrics(tracker, limiter)
	return &relayService{
		config:   gatewayConfig,
		tracker:  tracker,
		issuer:   issuer,
		metrics:  metrics,
		limiter:  limiter,
		dispatch: newDispatchHandler(tracker, issuer, metrics),
	}, nil
}

func (service *relayService) routes() http.Handler {
	router := chi.NewRouter()
	// The rate limiter keys on RemoteAddr, so client-supplied forwarding headers only count when trusted.
	if service.config.TrustProxyHeaders {
		router.Use(middleware.RealIP)
	}
	router.Use(recoverMiddleware, correlationIDMiddleware, requestLoggingMiddleware)
	if len(service.config.AllowedOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins: service.config.AllowedOrigins,
			AllowedMethods: []string{http.MethodPost},
			AllowedHeaders: []string{headerApiKey, headerOneTimeToken, headerContentType, headerCorrelationID},
			ExposedHeaders: []string{headerOneTimeToken, headerCorrelationID},
			MaxAge:         300,
		}))
	}
	router.Use(rateLimitMiddleware(service.limiter, service.metrics))
	router.Use(apiKeyMiddleware(service.config.ApiKey, service.metrics))

	router.MethodNotAllowed(handleMethodNotAllowed)
	router.Method(http.MethodPost, dispatchRoute, service.dispatch)
	return router
}

func (service *relayService) opsRoutes() http.Handler {
	router := chi.NewRouter()
	router.Use(recoverMiddleware)
	router.Get(healthRoute, handleHealth)
	router.Method(http.MethodGet, metricsRoute, service.metrics.handler())
	return router
}

func newHTTPServer(listenAddress string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              listenAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// tiny indirection to ease testing (can be stubbed)
var timeNow = func() time.Time { return time.Now() }
