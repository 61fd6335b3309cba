package creds

import "errors"

var (
	ErrCredentialNotFound = errors.New("credential not found")
	ErrCipherKeyMissing   = errors.New("token cipher requires a master key")
)
