package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

const maxDispatchBodyBytes = 64 << 10

type dispatchRequest struct {
	Message       string
	To            string
	From          string
	TimeToLifeSec int
}

type dispatchResponse struct {
	Message string `json:"message"`
}

type dispatchHandler struct {
	tracker *tokenTracker
	issuer  *tokenIssuer
	metrics *relayMetrics
}

func newDispatchHandler(tracker *tokenTracker, issuer *tokenIssuer, metrics *relayMetrics) *dispatchHandler {
	return &dispatchHandler{tracker: tracker, issuer: issuer, metrics: metrics}
}

func (handler *dispatchHandler) ServeHTTP(httpResponseWriter http.ResponseWriter, httpRequest *http.Request) {
	logger := log.Ctx(httpRequest.Context())

	if handler.tracker.resetIfOversized() {
		handler.metrics.trackerResets.Inc()
		logger.Warn().Int("threshold", trackerResetThreshold).Msg("tracker.reset")
	}

	acceptedRequest, responseToken, dispatchFailure := handler.dispatch(httpRequest)
	handler.metrics.observeDispatch(dispatchFailure)
	if dispatchFailure != nil {
		rejectionEvent := logger.Error()
		if isClientFailure(dispatchFailure) {
			rejectionEvent = logger.Warn()
		}
		rejectionEvent.Err(dispatchFailure).Msg("dispatch.rejected")
		writeDispatchError(httpResponseWriter, httpRequest, dispatchFailure)
		return
	}

	logger.Info().
		Str("to", acceptedRequest.To).
		Str("from", acceptedRequest.From).
		Int("ttl_sec", acceptedRequest.TimeToLifeSec).
		Str("next_token", tokenFingerprint(responseToken)).
		Msg("dispatch.accepted")

	httpResponseWriter.Header().Set(headerOneTimeToken, responseToken)
	writeJSON(httpResponseWriter, httpRequest, http.StatusOK, dispatchResponse{
		Message: fmt.Sprintf("Hello %s your message will be sent", acceptedRequest.To),
	})
}

// dispatch consumes the caller token before it looks at the payload,
// so a malformed request still burns a fresh token.
func (handler *dispatchHandler) dispatch(httpRequest *http.Request) (dispatchRequest, string, error) {
	callerToken := httpRequest.Header.Get(headerOneTimeToken)
	if strings.TrimSpace(callerToken) == "" {
		return dispatchRequest{}, "", newDispatchError(http.StatusBadRequest, messageMissingToken, errMissingToken)
	}

	if !handler.tracker.checkAndRecord(callerToken) {
		return dispatchRequest{}, "", newDispatchError(http.StatusBadRequest, messageReplayedToken,
			fmt.Errorf("token %s: %w", tokenFingerprint(callerToken), errReplayedToken))
	}

	acceptedRequest, decodeError := decodeDispatchRequest(httpRequest.Body)
	if decodeError != nil {
		return dispatchRequest{}, "", newDispatchError(http.StatusBadRequest, messageMalformedPayload, decodeError)
	}

	responseToken, mintError := handler.issuer.mint(acceptedRequest.To, acceptedRequest.From)
	if mintError != nil {
		return dispatchRequest{}, "", fmt.Errorf("mint response token: %w", mintError)
	}
	return acceptedRequest, responseToken, nil
}

func decodeDispatchRequest(requestBody io.Reader) (dispatchRequest, error) {
	decoder := json.NewDecoder(io.LimitReader(requestBody, maxDispatchBodyBytes))
	decoder.UseNumber()

	var fields map[string]any
	if decodeError := decoder.Decode(&fields); decodeError != nil {
		return dispatchRequest{}, fmt.Errorf("%w: %v", errMalformedPayload, decodeError)
	}

	var missingFields []string
	message, messageOk := nonBlankString(fields, "message")
	if !messageOk {
		missingFields = append(missingFields, "message")
	}
	recipient, recipientOk := nonBlankString(fields, "to")
	if !recipientOk {
		missingFields = append(missingFields, "to")
	}
	sender, senderOk := nonBlankString(fields, "from")
	if !senderOk {
		missingFields = append(missingFields, "from")
	}
	timeToLifeSec, timeToLifeOk := integerField(fields, "timeToLifeSec")
	if !timeToLifeOk {
		missingFields = append(missingFields, "timeToLifeSec")
	}
	if len(missingFields) > 0 {
		return dispatchRequest{}, fmt.Errorf("%w: invalid fields %s", errMalformedPayload, strings.Join(missingFields, ","))
	}

	return dispatchRequest{
		Message:       message,
		To:            recipient,
		From:          sender,
		TimeToLifeSec: timeToLifeSec,
	}, nil
}

func nonBlankString(fields map[string]any, fieldName string) (string, bool) {
	value, isString := fields[fieldName].(string)
	if !isString || strings.TrimSpace(value) == "" {
		return "", false
	}
	return value, true
}

// integerField accepts JSON integers in the int32 range; the value itself is not range checked further.
func integerField(fields map[string]any, fieldName string) (int, bool) {
	number, isNumber := fields[fieldName].(json.Number)
	if !isNumber {
		return 0, false
	}
	parsed, parseError := number.Int64()
	if parseError != nil || parsed < math.MinInt32 || parsed > math.MaxInt32 {
		return 0, false
	}
	return int(parsed), true
}

func handleMethodNotAllowed(httpResponseWriter http.ResponseWriter, _ *http.Request) {
	httpResponseWriter.Header().Set(headerContentType, contentTypePlain)
	httpResponseWriter.WriteHeader(http.StatusMethodNotAllowed)
	_, _ = io.WriteString(httpResponseWriter, messageMethodNotAllowed)
}

func handleHealth(httpResponseWriter http.ResponseWriter, _ *http.Request) {
	httpResponseWriter.Header().Set(headerContentType, contentTypeJSON)
	httpResponseWriter.WriteHeader(http.StatusOK)
	_, _ = httpResponseWriter.Write([]byte("{\"status\":\"ok\"}"))
}

func isClientFailure(err error) bool {
	return errors.Is(err, errMissingToken) || errors.Is(err, errReplayedToken) || errors.Is(err, errMalformedPayload)
}
