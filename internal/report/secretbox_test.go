package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCipher_RoundTrip(t *testing.T) {
	c, err := NewCipher("test-key-material")
	require.NoError(t, err)

	cases := []string{
		"a plain description",
		"",
		"multi-byte: 鳴潮 ワザリング・ウェーブス ❄️",
		"newlines\nand\ttabs",
	}

	for _, plain := range cases {
		enc, err := c.Seal(plain)
		require.NoError(t, err)
		assert.Equal(t, CipherMethod, enc.Method)
		assert.NotEqual(t, plain, enc.Data)

		got, err := c.Open(enc)
		require.NoError(t, err)
		assert.Equal(t, plain, got)
	}
}

func TestCipher_NonceIsFresh(t *testing.T) {
	c, err := NewCipher("test-key-material")
	require.NoError(t, err)

	a, err := c.Seal("same plaintext")
	require.NoError(t, err)
	b, err := c.Seal("same plaintext")
	require.NoError(t, err)
	assert.NotEqual(t, a.Data, b.Data)
}

func TestCipher_TamperFailsClosed(t *testing.T) {
	c, err := NewCipher("test-key-material")
	require.NoError(t, err)

	enc, err := c.Seal("sensitive text")
	require.NoError(t, err)

	// Flip a character in the encoded ciphertext
	tampered := enc
	data := []byte(tampered.Data)
	if data[10] == 'A' {
		data[10] = 'B'
	} else {
		data[10] = 'A'
	}
	tampered.Data = string(data)

	_, err = c.Open(tampered)
	assert.ErrorIs(t, err, ErrCipherOpen)

	// Unknown method tag fails closed too
	enc.Method = "xor"
	_, err = c.Open(enc)
	assert.ErrorIs(t, err, ErrCipherOpen)
}

func TestCipher_WrongKey(t *testing.T) {
	a, err := NewCipher("key-a")
	require.NoError(t, err)
	b, err := NewCipher("key-b")
	require.NoError(t, err)

	enc, err := a.Seal("sensitive text")
	require.NoError(t, err)

	_, err = b.Open(enc)
	assert.ErrorIs(t, err, ErrCipherOpen)
}

func TestNewCipher_EmptyKeyMaterial(t *testing.T) {
	_, err := NewCipher("")
	assert.Error(t, err)
}
