package helpers

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashPasswordSaltsPerCall(t *testing.T) {
	h1, err := HashPassword("pw123", bcrypt.MinCost)
	require.NoError(t, err)
	h2, err := HashPassword("pw123", bcrypt.MinCost)
	require.NoError(t, err)

	require.NotEqual(t, h1, h2, "two hashes of the same password must differ")
	require.True(t, CompareHashAndPassword(h1, "pw123"))
	require.True(t, CompareHashAndPassword(h2, "pw123"))
}

func TestCompareHashAndPasswordRejectsWrongPassword(t *testing.T) {
	h, err := HashPassword("pw123", bcrypt.MinCost)
	require.NoError(t, err)

	require.False(t, CompareHashAndPassword(h, "pw124"))
	require.False(t, CompareHashAndPassword(h, ""))
	require.False(t, CompareHashAndPassword("", "pw123"))
}

func TestHashPasswordClampsInvalidCost(t *testing.T) {
	h, err := HashPassword("pw123", 99)
	require.NoError(t, err)
	require.True(t, CompareHashAndPassword(h, "pw123"))
}
