package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuedTokenLifetime = 60 * time.Second

var errSigningMisconfigured = errors.New("signing secret is missing")

type issuerConfig struct {
	SigningSecret string
}

func (config issuerConfig) validate() error {
	if strings.TrimSpace(config.SigningSecret) == "" {
		return errSigningMisconfigured
	}
	return nil
}

// tokenIssuer mints the HS256 token handed back to the caller for its next request.
// Minted tokens are not stored; the next request only goes through the replay check.
type tokenIssuer struct {
	signingKey []byte
	lifetime   time.Duration
}

func newTokenIssuer(config issuerConfig) (*tokenIssuer, error) {
	if validationError := config.validate(); validationError != nil {
		return nil, validationError
	}
	return &tokenIssuer{
		signingKey: []byte(config.SigningSecret),
		lifetime:   issuedTokenLifetime,
	}, nil
}

// mint signs a token binding recipient and sender. Every token carries a fresh jti,
// so identical inputs minted within the same second still serialize differently.
func (issuer *tokenIssuer) mint(recipient string, sender string) (string, error) {
	currentTime := timeNow()
	claims := relayClaims{
		To:   recipient,
		From: sender,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(currentTime),
			ExpiresAt: jwt.NewNumericDate(currentTime.Add(issuer.lifetime)),
			ID:        uuid.NewString(),
		},
	}
	signedToken, signError := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(issuer.signingKey)
	if signError != nil {
		return "", fmt.Errorf("sign relay token: %w", signError)
	}
	return signedToken, nil
}

// inspect parses a token minted by this issuer. The dispatch path never calls it;
// it backs the mint command and tests.
func (issuer *tokenIssuer) inspect(signedToken string) (relayClaims, error) {
	var claims relayClaims
	_, parseError := jwt.ParseWithClaims(signedToken, &claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method == nil || token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected_jwt_alg")
		}
		return issuer.signingKey, nil
	}, jwt.WithTimeFunc(timeNow))
	if parseError != nil {
		return relayClaims{}, fmt.Errorf("parse relay token: %w", parseError)
	}
	return claims, nil
}
