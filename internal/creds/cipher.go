package creds

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/softrlabs/bexgate/params"
	"golang.org/x/crypto/pbkdf2"
)

// TokenCipher guards tokens at rest. The credential store encrypts before
// writing and decrypts after reading; the rest of the code only ever sees
// plaintext tokens.
type TokenCipher interface {
	Encrypt(token string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

type nullCipher struct{}

func (nullCipher) Encrypt(token string) (string, error) {
	return token, nil
}

func (nullCipher) Decrypt(ciphertext string) (string, error) {
	return ciphertext, nil
}

func NewNullCipher() TokenCipher {
	return nullCipher{}
}

const cipherKeySalt = "bexgate.tokens.v1"

type aesCipher struct {
	aead cipher.AEAD
}

func NewAESCipher(masterKey string) (TokenCipher, error) {
	if masterKey == "" {
		return nil, ErrCipherKeyMissing
	}
	key := pbkdf2.Key([]byte(masterKey), []byte(cipherKeySalt), params.CipherKeyIterations, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &aesCipher{aead: aead}, nil
}

func (c *aesCipher) Encrypt(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(token), nil)
	return base64.RawStdEncoding.EncodeToString(sealed), nil
}

func (c *aesCipher) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	sealed, err := base64.RawStdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("malformed token ciphertext: %w", err)
	}
	if len(sealed) < c.aead.NonceSize() {
		return "", fmt.Errorf("malformed token ciphertext: too short")
	}
	nonce, data := sealed[:c.aead.NonceSize()], sealed[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, data, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt token: %w", err)
	}
	return string(plain), nil
}
