package common

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeRandHexString(t *testing.T) {
	for _, size := range []int{0, 1, 16, 32} {
		s, err := MakeRandHexString(size)
		require.NoError(t, err)
		assert.Len(t, s, size*2)

		raw, err := hex.DecodeString(s)
		require.NoError(t, err)
		assert.Len(t, raw, size)
	}

	// reset and session tokens are built from 32 bytes; two draws must differ
	a, _ := MakeRandHexString(32)
	b, _ := MakeRandHexString(32)
	assert.NotEqual(t, a, b)
}

func TestGenerateRandByteArray(t *testing.T) {
	a := GenerateRandByteArray(24)
	b := GenerateRandByteArray(24)
	require.Len(t, a, 24)
	require.Len(t, b, 24)
	assert.NotEqual(t, a, b)
	assert.Empty(t, GenerateRandByteArray(0))
}

func TestRandomDigits(t *testing.T) {
	seen := map[string]struct{}{}
	for i := 0; i < 50; i++ {
		s, err := RandomDigits(VerificationCodeDigits)
		require.NoError(t, err)
		require.Len(t, s, VerificationCodeDigits)
		for _, c := range s {
			require.True(t, c >= '0' && c <= '9', "non-digit %q in %q", c, s)
		}
		seen[s] = struct{}{}
	}
	assert.Greater(t, len(seen), 1)

	s, err := RandomDigits(0)
	require.NoError(t, err)
	assert.Empty(t, s)
}

func TestWipeByteArray(t *testing.T) {
	buf := []byte("hunter2")
	WipeByteArray(buf)
	assert.Equal(t, make([]byte, 7), buf)

	assert.NotPanics(t, func() { WipeByteArray(nil) })
}
