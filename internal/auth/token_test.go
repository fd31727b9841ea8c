package auth_test

import (
	"encoding/base64"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invoiceflow/gatehouse/internal/auth"
)

func TestGenerateSessionToken_Entropy(t *testing.T) {
	token, err := auth.GenerateSessionToken()
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(token)
	require.NoError(t, err, "token must be URL-safe base64 with no padding")
	assert.Len(t, raw, 32)
}

func TestGenerateSessionToken_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := auth.GenerateSessionToken()
		require.NoError(t, err)
		assert.False(t, seen[token], "token collision")
		seen[token] = true
	}
}

func TestHashSessionToken_Deterministic(t *testing.T) {
	token, err := auth.GenerateSessionToken()
	require.NoError(t, err)

	first := auth.HashSessionToken(token)
	second := auth.HashSessionToken(token)

	assert.Equal(t, first, second)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{64}$`), first)
	assert.NotContains(t, first, token)
}

func TestHashSessionToken_DistinctInputs(t *testing.T) {
	a := auth.HashSessionToken("token-a")
	b := auth.HashSessionToken("token-b")
	assert.NotEqual(t, a, b)
}
