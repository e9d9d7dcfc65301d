package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashIsDeterministic(t *testing.T) {
	hasher := NewPasswordHasher()

	salt, err := hasher.NewSalt()
	require.NoError(t, err)

	first, err := hasher.Hash("correct horse battery staple", salt)
	require.NoError(t, err)
	second, err := hasher.Hash("correct horse battery staple", salt)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestHashDiffersPerSalt(t *testing.T) {
	hasher := NewPasswordHasher()

	saltA, err := hasher.NewSalt()
	require.NoError(t, err)
	saltB, err := hasher.NewSalt()
	require.NoError(t, err)
	require.NotEqual(t, saltA, saltB)

	hashA, err := hasher.Hash("same secret", saltA)
	require.NoError(t, err)
	hashB, err := hasher.Hash("same secret", saltB)
	require.NoError(t, err)

	assert.NotEqual(t, hashA, hashB)
}

func TestVerify(t *testing.T) {
	hasher := NewPasswordHasher()

	salt, err := hasher.NewSalt()
	require.NoError(t, err)
	hash, err := hasher.Hash("s3cret", salt)
	require.NoError(t, err)

	ok, err := hasher.Verify("s3cret", salt, hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = hasher.Verify("not the secret", salt, hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashRejectsBadSalt(t *testing.T) {
	hasher := NewPasswordHasher()

	_, err := hasher.Hash("secret", "%%% not base64 %%%")
	assert.Error(t, err)
}
