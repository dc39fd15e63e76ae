package report

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// CipherMethod tags every sealed field so the scheme can be rotated
// without guessing how old records were written.
const CipherMethod = "aes256-gcm"

// ErrCipherOpen is returned when a sealed field fails authentication.
// Tampered ciphertext fails closed instead of decrypting to garbage.
var ErrCipherOpen = errors.New("cipher: authentication failed")

// hkdfInfo binds the derived key to this use so the same key material
// elsewhere would derive a different key.
const hkdfInfo = "wuwa-report-at-rest"

// Cipher seals and opens sensitive report fields with AES-256-GCM. The
// key is derived from configured key material via HKDF-SHA256, never
// used raw.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives the AEAD key from key material.
func NewCipher(keyMaterial string) (*Cipher, error) {
	if keyMaterial == "" {
		return nil, errors.New("cipher: empty key material")
	}

	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, []byte(keyMaterial), nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("cipher: derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Seal encrypts plaintext under a fresh random nonce. The nonce is
// prepended to the ciphertext before encoding.
func (c *Cipher) Seal(plaintext string) (Encrypted, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return Encrypted{}, fmt.Errorf("cipher: nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return Encrypted{
		Method: CipherMethod,
		Data:   base64.StdEncoding.EncodeToString(sealed),
	}, nil
}

// Open decrypts a sealed field. Any tampering with the ciphertext, the
// nonce or the method tag yields ErrCipherOpen.
func (c *Cipher) Open(enc Encrypted) (string, error) {
	if enc.Method != CipherMethod {
		return "", fmt.Errorf("cipher: unsupported method %q: %w", enc.Method, ErrCipherOpen)
	}

	raw, err := base64.StdEncoding.DecodeString(enc.Data)
	if err != nil {
		return "", fmt.Errorf("cipher: decode: %w", ErrCipherOpen)
	}
	if len(raw) < c.aead.NonceSize() {
		return "", ErrCipherOpen
	}

	nonce, ct := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", ErrCipherOpen
	}
	return string(plain), nil
}
