package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
)

const (
	messageReplayedToken    = "JWT reutilizado. Cada transacción requiere un JWT único."
	messageMalformedPayload = "Payload inválido"
	messageMissingToken     = "missing one-time token"
	messageInvalidApiKey    = "Invalid API Key"
	messageRateLimited      = "rate_limited"
	messageInternalError    = "internal server error"
	messageMethodNotAllowed = "ERROR"
)

var (
	errMissingToken     = errors.New("one-time token header is missing")
	errReplayedToken    = errors.New("one-time token was already consumed")
	errMalformedPayload = errors.New("dispatch payload is malformed")
)

// dispatchError ties a failure to the status and body the caller sees.
type dispatchError struct {
	StatusCode int
	Message    string
	Wrapped    error
}

func (dispatchFailure *dispatchError) Error() string {
	return dispatchFailure.Wrapped.Error()
}

func (dispatchFailure *dispatchError) Unwrap() error {
	return dispatchFailure.Wrapped
}

func newDispatchError(statusCode int, message string, wrapped error) *dispatchError {
	return &dispatchError{StatusCode: statusCode, Message: message, Wrapped: wrapped}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(httpResponseWriter http.ResponseWriter, httpRequest *http.Request, statusCode int, payload any) {
	httpResponseWriter.Header().Set(headerContentType, contentTypeJSON)
	httpResponseWriter.WriteHeader(statusCode)
	if encodeError := json.NewEncoder(httpResponseWriter).Encode(payload); encodeError != nil {
		log.Ctx(httpRequest.Context()).Error().Err(encodeError).Msg("failed to write json response")
	}
}

func httpErrorJSON(httpResponseWriter http.ResponseWriter, httpRequest *http.Request, statusCode int, message string) {
	writeJSON(httpResponseWriter, httpRequest, statusCode, errorResponse{Error: message})
}

// writeDispatchError renders err; anything that is not a dispatchError becomes a 500.
func writeDispatchError(httpResponseWriter http.ResponseWriter, httpRequest *http.Request, err error) {
	var dispatchFailure *dispatchError
	if errors.As(err, &dispatchFailure) {
		httpErrorJSON(httpResponseWriter, httpRequest, dispatchFailure.StatusCode, dispatchFailure.Message)
		return
	}
	log.Ctx(httpRequest.Context()).Error().Err(err).Msg("dispatch.failed")
	httpErrorJSON(httpResponseWriter, httpRequest, http.StatusInternalServerError, messageInternalError)
}
