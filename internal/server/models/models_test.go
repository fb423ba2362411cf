package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentity_PublicOmitsSecrets(t *testing.T) {
	exp := time.Now()
	id := &Identity{
		ID:                  "id-1",
		Email:               "alice@example.com",
		Name:                "Alice",
		PasswordHash:        "$argon2id$secret",
		VerifyCodeHash:      "$argon2id$code",
		VerifyCodeExpiresAt: &exp,
		ResetTokenHash:      "$argon2id$reset",
		ResetTokenExpiresAt: &exp,
		RegisterMethod:      MethodPassword,
		Role:                RoleUser,
	}

	b, err := json.Marshal(id.Public())
	require.NoError(t, err)
	s := string(b)

	assert.Contains(t, s, `"email":"alice@example.com"`)
	assert.NotContains(t, s, "argon2id")
	assert.NotContains(t, s, "Hash")
	assert.NotContains(t, s, "ExpiresAt")
}

func TestIdentity_CanUsePassword(t *testing.T) {
	assert.True(t, (&Identity{RegisterMethod: MethodPassword}).CanUsePassword())
	assert.False(t, (&Identity{RegisterMethod: MethodFederated}).CanUsePassword())
	assert.True(t, (&Identity{RegisterMethod: MethodFederated, PasswordMethodLinked: true}).CanUsePassword())
}

func TestParseCategory(t *testing.T) {
	c, ok := ParseCategory("")
	assert.True(t, ok)
	assert.Equal(t, CategoryOthers, c)

	c, ok = ParseCategory(" Banking ")
	assert.True(t, ok)
	assert.Equal(t, CategoryBanking, c)

	_, ok = ParseCategory("crypto")
	assert.False(t, ok)
}

func TestNormalizeTags(t *testing.T) {
	assert.Equal(t, []string{"work", "mail"}, NormalizeTags([]string{" work", "", "mail", "work ", "  "}))
	assert.Equal(t, []string{}, NormalizeTags(nil))
}
