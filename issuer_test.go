package main

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSigningSecret = "4c90b075-e62b-42a0-b5a7-8eaf6e23934b"

func newTestIssuer(t *testing.T) *tokenIssuer {
	t.Helper()
	issuer, issuerError := newTokenIssuer(issuerConfig{SigningSecret: testSigningSecret})
	require.NoError(t, issuerError)
	return issuer
}

func freezeClock(t *testing.T, frozenTime time.Time) {
	t.Helper()
	originalTimeNow := timeNow
	t.Cleanup(func() {
		timeNow = originalTimeNow
	})
	timeNow = func() time.Time { return frozenTime }
}

func TestNewTokenIssuer_RejectsMissingSecret(t *testing.T) {
	for _, secret := range []string{"", "   "} {
		issuer, issuerError := newTokenIssuer(issuerConfig{SigningSecret: secret})
		assert.Nil(t, issuer)
		assert.ErrorIs(t, issuerError, errSigningMisconfigured)
	}
}

func TestTokenIssuer_MintProducesCompactHS256Token(t *testing.T) {
	issuer := newTestIssuer(t)

	signedToken, mintError := issuer.mint("Juan Perez", "Rita Asturia")
	require.NoError(t, mintError)
	require.NotEmpty(t, signedToken)
	assert.Len(t, strings.Split(signedToken, "."), 3)

	parsedToken, _, parseError := jwt.NewParser().ParseUnverified(signedToken, &relayClaims{})
	require.NoError(t, parseError)
	assert.Equal(t, jwt.SigningMethodHS256.Alg(), parsedToken.Method.Alg())
}

func TestTokenIssuer_MintBindsClaimsAndSixtySecondExpiry(t *testing.T) {
	issuedAt := time.Date(2026, time.March, 3, 10, 0, 0, 0, time.UTC)
	freezeClock(t, issuedAt)
	issuer := newTestIssuer(t)

	signedToken, mintError := issuer.mint("Juan Perez", "Rita Asturia")
	require.NoError(t, mintError)

	claims, inspectError := issuer.inspect(signedToken)
	require.NoError(t, inspectError)
	assert.Equal(t, "Juan Perez", claims.To)
	assert.Equal(t, "Rita Asturia", claims.From)
	assert.True(t, claims.IssuedAt.Time.Equal(issuedAt))
	assert.True(t, claims.ExpiresAt.Time.Equal(issuedAt.Add(60*time.Second)))
	assert.NotEmpty(t, claims.ID)
}

func TestTokenIssuer_MintTwiceYieldsDistinctTokens(t *testing.T) {
	issuer := newTestIssuer(t)

	firstToken, firstError := issuer.mint("Juan Perez", "Rita Asturia")
	require.NoError(t, firstError)
	secondToken, secondError := issuer.mint("Juan Perez", "Rita Asturia")
	require.NoError(t, secondError)

	assert.NotEmpty(t, firstToken)
	assert.NotEmpty(t, secondToken)
	assert.NotEqual(t, firstToken, secondToken)
}

func TestTokenIssuer_MintAtDifferentInstantsDiffersInIssuedAt(t *testing.T) {
	issuer := newTestIssuer(t)
	firstInstant := time.Date(2026, time.March, 3, 10, 0, 0, 0, time.UTC)

	freezeClock(t, firstInstant)
	firstToken, firstError := issuer.mint("Juan Perez", "Rita Asturia")
	require.NoError(t, firstError)
	timeNow = func() time.Time { return firstInstant.Add(2 * time.Second) }
	secondToken, secondError := issuer.mint("Juan Perez", "Rita Asturia")
	require.NoError(t, secondError)

	firstClaims, _ := issuer.inspect(firstToken)
	secondClaims, _ := issuer.inspect(secondToken)
	assert.NotEqual(t, firstToken, secondToken)
	assert.True(t, secondClaims.IssuedAt.Time.After(firstClaims.IssuedAt.Time))
}

func TestTokenIssuer_InspectRejectsForeignSignature(t *testing.T) {
	issuer := newTestIssuer(t)
	foreignIssuer, foreignError := newTokenIssuer(issuerConfig{SigningSecret: "another-secret"})
	require.NoError(t, foreignError)

	foreignToken, mintError := foreignIssuer.mint("Juan Perez", "Rita Asturia")
	require.NoError(t, mintError)

	_, inspectError := issuer.inspect(foreignToken)
	assert.ErrorIs(t, inspectError, jwt.ErrTokenSignatureInvalid)
}

func TestTokenIssuer_InspectRejectsExpiredToken(t *testing.T) {
	issuedAt := time.Date(2026, time.March, 3, 10, 0, 0, 0, time.UTC)
	freezeClock(t, issuedAt)
	issuer := newTestIssuer(t)
	signedToken, mintError := issuer.mint("Juan Perez", "Rita Asturia")
	require.NoError(t, mintError)

	timeNow = func() time.Time { return issuedAt.Add(61 * time.Second) }

	_, inspectError := issuer.inspect(signedToken)
	assert.ErrorIs(t, inspectError, jwt.ErrTokenExpired)
}
