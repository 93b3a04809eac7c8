package main

import (
	"context"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog/log"
)

type correlationIDContextKey struct{}

func correlationIDFromContext(ctx context.Context) string {
	correlationID, _ := ctx.Value(correlationIDContextKey{}).(string)
	return correlationID
}

func correlationIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(httpResponseWriter http.ResponseWriter, httpRequest *http.Request) {
		correlationID := httpRequest.Header.Get(headerCorrelationID)
		if correlationID == "" {
			correlationID = xid.New().String()
		}
		httpResponseWriter.Header().Set(headerCorrelationID, correlationID)

		ctx := context.WithValue(httpRequest.Context(), correlationIDContextKey{}, correlationID)
		next.ServeHTTP(httpResponseWriter, httpRequest.WithContext(ctx))
	})
}

func requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(httpResponseWriter http.ResponseWriter, httpRequest *http.Request) {
		startTime := time.Now()

		requestLogger := log.With().
			Str("correlation_id", correlationIDFromContext(httpRequest.Context())).
			Str("method", httpRequest.Method).
			Str("path", httpRequest.URL.Path).
			Str("remote", httpRequest.RemoteAddr).
			Logger()

		ctx := requestLogger.WithContext(httpRequest.Context())
		recordingWriter := &statusWriter{ResponseWriter: httpResponseWriter, statusCode: http.StatusOK}
		next.ServeHTTP(recordingWriter, httpRequest.WithContext(ctx))

		requestLogger.Info().
			Int("status", recordingWriter.statusCode).
			Dur("duration", time.Since(startTime)).
			Msg("request.handled")
	})
}

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(httpResponseWriter http.ResponseWriter, httpRequest *http.Request) {
		defer func() {
			if recovered := recover(); recovered != nil {
				if recovered == http.ErrAbortHandler {
					panic(recovered)
				}
				log.Ctx(httpRequest.Context()).Error().
					Interface("panic", recovered).
					Bytes("stack", debug.Stack()).
					Msg("panic.recovered")
				httpErrorJSON(httpResponseWriter, httpRequest, http.StatusInternalServerError, messageInternalError)
			}
		}()
		next.ServeHTTP(httpResponseWriter, httpRequest)
	})
}

// apiKeyMiddleware is the static credential gate in front of every dispatch route, including the 405 path.
func apiKeyMiddleware(expectedKey string, metrics *relayMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(httpResponseWriter http.ResponseWriter, httpRequest *http.Request) {
			if !apiKeyMatches(expectedKey, httpRequest.Header.Get(headerApiKey)) {
				metrics.observeRejection(outcomeInvalidApiKey)
				log.Ctx(httpRequest.Context()).Warn().Msg("api_key.rejected")
				httpErrorJSON(httpResponseWriter, httpRequest, http.StatusUnauthorized, messageInvalidApiKey)
				return
			}
			next.ServeHTTP(httpResponseWriter, httpRequest)
		})
	}
}

func rateLimitMiddleware(limiter *clientLimiter, metrics *relayMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(httpResponseWriter http.ResponseWriter, httpRequest *http.Request) {
			if !limiter.allow(rateKey(httpRequest.RemoteAddr)) {
				metrics.observeRejection(outcomeRateLimited)
				httpErrorJSON(httpResponseWriter, httpRequest, http.StatusTooManyRequests, messageRateLimited)
				return
			}
			next.ServeHTTP(httpResponseWriter, httpRequest)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	statusCode int
}

func (writer *statusWriter) WriteHeader(statusCode int) {
	writer.statusCode = statusCode
	writer.ResponseWriter.WriteHeader(statusCode)
}
