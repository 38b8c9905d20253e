package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratePINFormat(t *testing.T) {
	for i := 0; i < 200; i++ {
		pin, err := GeneratePIN()
		require.NoError(t, err)
		require.Len(t, pin, PINLength)
		for _, r := range pin {
			require.True(t, r >= '0' && r <= '9', "non-digit in %q", pin)
		}
	}
}

func TestGeneratePINEntropy(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 500; i++ {
		pin, err := GeneratePIN()
		require.NoError(t, err)
		seen[pin] = struct{}{}
	}
	// 500 draws from 10^8 values: a handful of collisions at most.
	assert.Greater(t, len(seen), 490)
}

func TestGenerateToken(t *testing.T) {
	a, err := GenerateToken(32)
	require.NoError(t, err)
	b, err := GenerateToken(32)
	require.NoError(t, err)
	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
}
