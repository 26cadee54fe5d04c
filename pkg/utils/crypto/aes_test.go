package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCipherRoundTrip(t *testing.T) {
	c, err := NewCipher("test-key")
	require.NoError(t, err)

	sealed, err := c.Seal("s3cret", "tenant:1")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", sealed)

	plain, err := c.Open(sealed, "tenant:1")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", plain)
}

func TestCipherRejectsOtherAssociatedData(t *testing.T) {
	c, err := NewCipher("test-key")
	require.NoError(t, err)

	sealed, err := c.Seal("s3cret", "tenant:1")
	require.NoError(t, err)

	_, err = c.Open(sealed, "tenant:2")
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestCipherEmptyValues(t *testing.T) {
	c, err := NewCipher("test-key")
	require.NoError(t, err)

	sealed, err := c.Seal("", "x")
	require.NoError(t, err)
	assert.Empty(t, sealed)

	_, err = c.Open("not base64!", "x")
	assert.ErrorIs(t, err, ErrInvalidCipherText)

	_, err = NewCipher("")
	assert.ErrorIs(t, err, ErrInvalidKey)
}
