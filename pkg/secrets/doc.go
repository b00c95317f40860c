// Package secrets encrypts tenant credentials at rest.
//
// Values are sealed with AES-256-GCM using a key derived from a configured
// secret through HKDF-SHA256, and serialized as three hex segments:
//
//	<iv>:<authTag>:<ciphertext>
//
// The serialized form is stable across processes that share the same secret.
//
// Basic usage:
//
//	c, err := secrets.New(os.Getenv("ENCRYPTION_KEY"))
//	if err != nil {
//		return err
//	}
//	sealed, err := c.Encrypt("pit-1234")
//	plain, err := c.Decrypt(sealed)
//
// Records written before encryption was enabled hold plaintext credentials.
// Reveal returns such values unchanged instead of failing, so stores can be
// migrated in place:
//
//	apiKey := c.Reveal(record.APIKey)
package secrets
