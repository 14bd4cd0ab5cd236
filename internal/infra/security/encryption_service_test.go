//go:build !integration

package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretBox(t *testing.T) {
	box, err := NewSecretBox("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	sealed, err := box.Seal("sk-user-key")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "sk-user-key")

	again, err := box.Seal("sk-user-key")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce is random")

	plain, err := box.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "sk-user-key", plain)

	_, err = box.Open("bm90LXNlYWxlZA==")
	assert.Error(t, err)
}

func TestSecretBoxKeyHandling(t *testing.T) {
	_, err := NewSecretBox("short")
	assert.Error(t, err)

	box, err := NewSecretBox("")
	require.NoError(t, err)
	assert.Nil(t, box)
	_, err = box.Seal("x")
	assert.ErrorIs(t, err, ErrNoKey)
}
