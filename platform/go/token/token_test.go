package token

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewProducesURLSafeTokens(t *testing.T) {
	t.Parallel()

	tok, err := New()
	require.NoError(t, err)
	require.Len(t, tok, 43)

	decoded, err := base64.RawURLEncoding.DecodeString(tok)
	require.NoError(t, err)
	require.Len(t, decoded, randomBytes)
}

func TestNewDoesNotRepeat(t *testing.T) {
	t.Parallel()

	seen := make(map[string]struct{}, 64)
	for i := 0; i < 64; i++ {
		tok, err := New()
		require.NoError(t, err)
		require.NotContains(t, seen, tok)
		seen[tok] = struct{}{}
	}
}
