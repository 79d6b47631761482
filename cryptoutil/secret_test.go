package cryptoutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashAndVerifySecretRoundTrip(t *testing.T) {
	hash, err := HashSecret("correct-horse-battery-staple")
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	require.True(t, VerifySecret("correct-horse-battery-staple", hash))
	require.False(t, VerifySecret("wrong-password", hash))
}

func TestVerifySecretRejectsEmptyHash(t *testing.T) {
	require.False(t, VerifySecret("anything", ""))
}

func TestHashSecretProducesDistinctSaltsPerCall(t *testing.T) {
	hash1, err := HashSecret("same-secret")
	require.NoError(t, err)
	hash2, err := HashSecret("same-secret")
	require.NoError(t, err)

	require.NotEqual(t, hash1, hash2)
	require.True(t, VerifySecret("same-secret", hash1))
	require.True(t, VerifySecret("same-secret", hash2))
}
