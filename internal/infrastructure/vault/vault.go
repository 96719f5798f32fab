// Package vault encrypts payment provider credentials at rest.
//
// Values are stored as hex(iv):hex(tag):hex(ciphertext) using AES-256-GCM.
// The AES key is derived from the configured master secret with HKDF-SHA256.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	domainErrors "github.com/cassiomorais/orders/internal/domain/errors"
	"golang.org/x/crypto/hkdf"
)

const (
	keySize = 32
	ivSize  = 12
	tagSize = 16

	hkdfInfo = "orders/payment-config/v1"
)

// Vault is safe for concurrent use.
type Vault struct {
	aead cipher.AEAD
}

// New derives the data key from masterKey.
func New(masterKey string) (*Vault, error) {
	if masterKey == "" {
		return nil, fmt.Errorf("vault: empty master key")
	}

	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(masterKey), nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("vault: derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: new cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("vault: new gcm: %w", err)
	}

	return &Vault{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random IV.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("vault: read iv: %w", err)
	}

	sealed := v.aead.Seal(nil, iv, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	return strings.Join([]string{
		hex.EncodeToString(iv),
		hex.EncodeToString(tag),
		hex.EncodeToString(ct),
	}, ":"), nil
}

// Decrypt opens a value produced by Encrypt. A value without any ':' is a
// legacy plaintext credential and is returned unchanged. Anything else that
// does not authenticate fails with ErrDecryptionFailed.
func (v *Vault) Decrypt(value string) (string, error) {
	if !IsEncrypted(value) {
		return value, nil
	}

	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return "", domainErrors.ErrDecryptionFailed
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != ivSize {
		return "", domainErrors.ErrDecryptionFailed
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != tagSize {
		return "", domainErrors.ErrDecryptionFailed
	}
	ct, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", domainErrors.ErrDecryptionFailed
	}

	plaintext, err := v.aead.Open(nil, iv, append(ct, tag...), nil)
	if err != nil {
		return "", domainErrors.ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// IsEncrypted reports whether value is in the iv:tag:ciphertext layout
// rather than a legacy plaintext.
func IsEncrypted(value string) bool {
	return strings.Contains(value, ":")
}
