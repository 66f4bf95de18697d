// Package credcrypt decodes seller credentials that are stored encrypted.
package credcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/mrussa/meeshosync/internal/repo"
)

const keySize = 32

var ErrMalformed = errors.New("malformed credential ciphertext")

// Cipher decrypts values of the form "<iv hex>:<ciphertext hex>" produced
// with AES-256-CBC and PKCS#7 padding. A Cipher without a key passes values
// through unchanged.
type Cipher struct {
	block cipher.Block
}

// New builds a Cipher from a 64 character hex key; an empty key disables
// decryption.
func New(hexKey string) (*Cipher, error) {
	if hexKey == "" {
		return &Cipher{}, nil
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("credential key: %w", err)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("credential key: want %d bytes, got %d", keySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("credential key: %w", err)
	}
	return &Cipher{block: block}, nil
}

func (c *Cipher) Enabled() bool { return c != nil && c.block != nil }

func (c *Cipher) Decrypt(s string) (string, error) {
	if !c.Enabled() {
		return s, nil
	}
	ivHex, ctHex, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return "", fmt.Errorf("%w: missing iv separator", ErrMalformed)
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != aes.BlockSize {
		return "", fmt.Errorf("%w: bad iv", ErrMalformed)
	}
	ct, err := hex.DecodeString(ctHex)
	if err != nil || len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: bad ciphertext length", ErrMalformed)
	}

	out := make([]byte, len(ct))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(out, ct)

	n := int(out[len(out)-1])
	if n == 0 || n > aes.BlockSize {
		return "", fmt.Errorf("%w: bad padding", ErrMalformed)
	}
	for _, b := range out[len(out)-n:] {
		if int(b) != n {
			return "", fmt.Errorf("%w: bad padding", ErrMalformed)
		}
	}
	return string(out[:len(out)-n]), nil
}

// Decode returns cred with email and password decrypted.
func (c *Cipher) Decode(cred repo.Credential) (repo.Credential, error) {
	email, err := c.Decrypt(cred.Email)
	if err != nil {
		return repo.Credential{}, fmt.Errorf("email: %w", err)
	}
	password, err := c.Decrypt(cred.Password)
	if err != nil {
		return repo.Credential{}, fmt.Errorf("password: %w", err)
	}
	cred.Email, cred.Password = email, password
	return cred, nil
}
