package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"strings"
)

const (
	ivSize  = 16
	tagSize = 16
	sep     = ":"
)

// Cipher seals and opens credential strings with a single derived key.
// It is safe for concurrent use.
type Cipher struct {
	aead cipher.AEAD
}

// New derives an encryption key from secret and returns a ready Cipher.
func New(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	key, err := deriveKey([]byte(secret))
	if err != nil {
		return nil, err
	}
	defer clearBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Join(ErrKeyDerivationFailed, err)
	}

	aead, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, errors.Join(ErrKeyDerivationFailed, err)
	}

	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext and returns it as "iv:authTag:ciphertext" in hex.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", errors.Join(ErrEncryptionFailed, err)
	}

	// Seal appends the tag to the ciphertext; split it out for the wire format.
	sealed := c.aead.Seal(nil, iv, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	return strings.Join([]string{
		hex.EncodeToString(iv),
		hex.EncodeToString(tag),
		hex.EncodeToString(ct),
	}, sep), nil
}

// Decrypt opens a value produced by Encrypt.
// It returns ErrInvalidCiphertext when value is not in the three-part form
// and ErrDecryptionFailed when authentication fails.
func (c *Cipher) Decrypt(value string) (string, error) {
	iv, tag, ct, err := split(value)
	if err != nil {
		return "", err
	}

	sealed := make([]byte, 0, len(ct)+len(tag))
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plaintext, err := c.aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", errors.Join(ErrDecryptionFailed, err)
	}
	return string(plaintext), nil
}

// Reveal decrypts value, or returns it unchanged when it cannot be decrypted.
// Legacy records store plaintext credentials and must keep working.
func (c *Cipher) Reveal(value string) string {
	plaintext, err := c.Decrypt(value)
	if err != nil {
		return value
	}
	return plaintext
}

// IsEncrypted reports whether value has the serialized ciphertext shape.
// It does not verify that value decrypts under any key.
func IsEncrypted(value string) bool {
	_, _, _, err := split(value)
	return err == nil
}

func split(value string) (iv, tag, ct []byte, err error) {
	parts := strings.Split(value, sep)
	if len(parts) != 3 {
		return nil, nil, nil, ErrInvalidCiphertext
	}

	if iv, err = hex.DecodeString(parts[0]); err != nil || len(iv) != ivSize {
		return nil, nil, nil, ErrInvalidCiphertext
	}
	if tag, err = hex.DecodeString(parts[1]); err != nil || len(tag) != tagSize {
		return nil, nil, nil, ErrInvalidCiphertext
	}
	if ct, err = hex.DecodeString(parts[2]); err != nil {
		return nil, nil, nil, ErrInvalidCiphertext
	}
	return iv, tag, ct, nil
}
