package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("password-1234")
	require.NoError(t, err)
	require.NotEqual(t, "password-1234", hash)

	require.True(t, VerifyPassword(hash, "password-1234"))
	require.False(t, VerifyPassword(hash, "other-password"))
}

func TestGenerateToken(t *testing.T) {
	a, err := GenerateToken(32)
	require.NoError(t, err)
	b, err := GenerateToken(32)
	require.NoError(t, err)

	require.NotEmpty(t, a)
	require.NotEqual(t, a, b)
}

func TestGenerateNumericCode(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := GenerateNumericCode(6)
		require.NoError(t, err)
		require.Len(t, code, 6)
		for _, r := range code {
			require.GreaterOrEqual(t, r, '0')
			require.LessOrEqual(t, r, '9')
		}
	}

	long, err := GenerateNumericCode(8)
	require.NoError(t, err)
	require.Len(t, long, 8)

	_, err = GenerateNumericCode(0)
	require.Error(t, err)
}
