package cryptox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cheap = Params{Memory: 1024, Time: 1, Parallelism: 1, SaltLen: 16, KeyLen: 32}

func TestHasher_HashAndVerify(t *testing.T) {
	h := NewHasher(cheap)

	enc, err := h.Hash("Correct-Horse-1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(enc, "$argon2id$v=19$m=1024,t=1,p=1$"))

	assert.True(t, h.Verify("Correct-Horse-1", enc))
	assert.False(t, h.Verify("Correct-Horse-2", enc))
	assert.False(t, h.Verify("", enc))
}

func TestHasher_SaltedPerCall(t *testing.T) {
	h := NewHasher(cheap)
	a, err := h.Hash("123456")
	require.NoError(t, err)
	b, err := h.Hash("123456")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.True(t, h.Verify("123456", a))
	assert.True(t, h.Verify("123456", b))
}

func TestHasher_VerifyUsesEncodedParams(t *testing.T) {
	enc, err := NewHasher(cheap).Hash("pw")
	require.NoError(t, err)

	other := NewHasher(Params{Memory: 2048, Time: 2, Parallelism: 1})
	assert.True(t, other.Verify("pw", enc))
}

func TestHasher_EmptyRejected(t *testing.T) {
	_, err := NewHasher(cheap).Hash("")
	assert.Error(t, err)
}

func TestHasher_MalformedNeverMatches(t *testing.T) {
	h := NewHasher(cheap)
	for _, enc := range []string{
		"",
		"plain",
		"$argon2i$v=19$m=1024,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=18$m=1024,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=19$garbage$c2FsdA$a2V5",
		"$argon2id$v=19$m=1024,t=1,p=1$!!!$a2V5",
		"$argon2id$v=19$m=1024,t=1,p=1$c2FsdA$",
	} {
		assert.False(t, h.Verify("x", enc), enc)
	}
}

func TestHasher_UnusableHash(t *testing.T) {
	h := NewHasher(cheap)
	enc, err := h.UnusableHash()
	require.NoError(t, err)
	assert.False(t, h.Verify("", enc))
	assert.False(t, h.Verify("password", enc))
}

func TestNewHasher_Defaults(t *testing.T) {
	h := NewHasher(Params{})
	assert.Equal(t, DefaultParams, h.params)
}
