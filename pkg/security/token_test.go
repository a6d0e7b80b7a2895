package security

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestNewToken(t *testing.T) {
	plain, hash, err := NewToken()
	require.NoError(t, err)
	assert.Len(t, plain, TokenBytes*2)
	assert.Equal(t, HashToken(plain), hash)
	assert.NotEqual(t, plain, hash)

	again, _, err := NewToken()
	require.NoError(t, err)
	assert.NotEqual(t, plain, again)
}

func TestNewNumericCode(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := NewNumericCode(6)
		require.NoError(t, err)
		require.Len(t, code, 6)
		n, err := strconv.Atoi(code)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 100000)
		assert.Less(t, n, 1000000)
	}
}

func TestBcryptHasher(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	hash, err := h.Hash("123456")
	require.NoError(t, err)
	assert.NoError(t, h.Compare(hash, "123456"))
	assert.Error(t, h.Compare(hash, "654321"))
}
