package vault

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrMalformedCiphertext is returned by Open for input that is not a value
// previously produced by Seal under the current key material. Callers treat
// it as data corruption, not bad user input.
var ErrMalformedCiphertext = errors.New("vault: malformed ciphertext")

// Vault seals and opens artifact references with a single process-wide
// AES-CBC key/IV pair loaded once at startup. There is no key rotation:
// values sealed under a superseded key cannot be opened.
type Vault struct {
	block cipher.Block
	iv    []byte
}

// New builds a Vault from raw key and IV bytes. The key must be 16, 24 or
// 32 bytes (AES-128/192/256); the IV must be exactly one AES block.
func New(key, iv []byte) (*Vault, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: bad key: %w", err)
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("vault: iv must be %d bytes, got %d", aes.BlockSize, len(iv))
	}
	return &Vault{block: block, iv: append([]byte(nil), iv...)}, nil
}

// Seal encrypts plaintext and returns a base64url-encoded sealed reference.
// Deterministic for a given key/IV pair.
func (v *Vault) Seal(plaintext []byte) (string, error) {
	padded := pad(plaintext, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(v.block, v.iv).CryptBlocks(out, padded)
	return base64.URLEncoding.EncodeToString(out), nil
}

// Open reverses Seal. Any input that does not decode to a validly padded
// ciphertext fails with ErrMalformedCiphertext.
func (v *Vault) Open(sealed string) ([]byte, error) {
	raw, err := base64.URLEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCiphertext, err)
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: length %d not a block multiple", ErrMalformedCiphertext, len(raw))
	}
	out := make([]byte, len(raw))
	cipher.NewCBCDecrypter(v.block, v.iv).CryptBlocks(out, raw)
	plain, ok := unpad(out, aes.BlockSize)
	if !ok {
		return nil, fmt.Errorf("%w: bad padding", ErrMalformedCiphertext)
	}
	return plain, nil
}

// PKCS#7
func pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(append([]byte(nil), b...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte, size int) ([]byte, bool) {
	if len(b) == 0 || len(b)%size != 0 {
		return nil, false
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, false
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, false
		}
	}
	return b[:len(b)-n], true
}
