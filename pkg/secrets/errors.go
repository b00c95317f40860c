package secrets

import "errors"

var (
	ErrEmptySecret         = errors.New("encryption secret must not be empty")
	ErrKeyDerivationFailed = errors.New("key derivation failed")

	ErrEncryptionFailed  = errors.New("encryption failed")
	ErrDecryptionFailed  = errors.New("decryption failed")
	ErrInvalidCiphertext = errors.New("invalid ciphertext format")
)
