package tenantadmin

import "errors"

var (
	ErrEncryptCredential = errors.New("failed to encrypt credential")
	ErrDecodeRequest     = errors.New("failed to decode request body")
)
