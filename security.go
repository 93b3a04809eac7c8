package main

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/golang-jwt/jwt/v5"
)

const (
	headerApiKey        = "X-Parse-REST-API-Key"
	headerOneTimeToken  = "X-JWT-KWY"
	headerContentType   = "Content-Type"
	headerCorrelationID = "X-Correlation-ID"

	contentTypeJSON  = "application/json"
	contentTypePlain = "text/plain; charset=utf-8"

	tokenFingerprintLength = 12
)

type relayClaims struct {
	To   string `json:"to"`
	From string `json:"from"`
	jwt.RegisteredClaims
}

// apiKeyMatches compares in constant time; an empty expected key never matches.
func apiKeyMatches(expectedKey string, presentedKey string) bool {
	if expectedKey == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expectedKey), []byte(presentedKey)) == 1
}

// tokenFingerprint is what gets logged in place of a token.
func tokenFingerprint(token string) string {
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:])[:tokenFingerprintLength]
}
