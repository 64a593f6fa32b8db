package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.Contains(t, string(hash), "$argon2id$v=19$")

	ok, err := VerifyPassword("correct horse battery staple", hash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyPasswordMismatch(t *testing.T) {
	hash, err := HashPassword("right password")
	require.NoError(t, err)

	ok, err := VerifyPassword("wrong password", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyPasswordMalformedHash(t *testing.T) {
	cases := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"plain text", "hunter2"},
		{"wrong scheme", "$bcrypt$v=19$t=3,m=65536,p=2$c2FsdA$aGFzaA"},
		{"missing hash segment", "$argon2id$v=19$t=3,m=65536,p=2$c2FsdA"},
		{"bad parameter segment", "$argon2id$v=19$time=3$c2FsdA$aGFzaA"},
		{"bad base64 salt", "$argon2id$v=19$t=3,m=65536,p=2$!!!$aGFzaA"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := VerifyPassword("anything", []byte(tc.hash))
			assert.Error(t, err)
		})
	}
}

func TestVerifyPasswordNonDefaultParams(t *testing.T) {
	params := Argon2Params{Time: 1, Memory: 16 * 1024, Threads: 1, KeyLen: 16, SaltLen: 8}
	hash, err := HashPasswordWithParams("pw with different cost", params)
	require.NoError(t, err)

	ok, err := VerifyPassword("pw with different cost", hash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHashPasswordUniqueSalt(t *testing.T) {
	first, err := HashPassword("same input")
	require.NoError(t, err)
	second, err := HashPassword("same input")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}
