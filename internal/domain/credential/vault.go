package credential

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Vault seals and opens token material with ChaCha20-Poly1305. The nonce
// is generated per sealing and prefixed to the ciphertext.
type Vault struct {
	key []byte
}

// NewVault creates a Vault from a 32-byte key.
func NewVault(key []byte) (*Vault, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("vault key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &Vault{key: key}, nil
}

// Seal encrypts a plaintext token. An empty token seals to nil.
func (v *Vault) Seal(plaintext string) ([]byte, error) {
	if plaintext == "" {
		return nil, nil
	}

	aead, err := chacha20poly1305.New(v.key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// Open decrypts a sealed token. Nil or empty input opens to the empty
// string.
func (v *Vault) Open(sealed []byte) (string, error) {
	if len(sealed) == 0 {
		return "", nil
	}

	aead, err := chacha20poly1305.New(v.key)
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}

	if len(sealed) < aead.NonceSize() {
		return "", fmt.Errorf("sealed token too short")
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("opening sealed token: %w", err)
	}
	return string(plaintext), nil
}
