package crypto

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

// secretBoxLabel domain-separates the derived key from any other use of the
// same root secret (the root secret also seeds external session-token
// signing, outside this package's concern).
const secretBoxLabel = "ployer:secret-box:v1"

var ErrMissingRootSecret = errors.New("root secret is empty")

// SecretBox encrypts and decrypts small values (environment variable values,
// SSH private keys) with a key derived from a single configured root secret.
// It never exposes the derived key to callers.
type SecretBox struct {
	key []byte
}

// NewSecretBox derives a 32-byte AES-GCM key from rootSecret by hashing it
// together with a fixed domain-separation label. Changing rootSecret
// invalidates every value previously sealed by a box derived from it.
func NewSecretBox(rootSecret string) (*SecretBox, error) {
	if rootSecret == "" {
		return nil, ErrMissingRootSecret
	}

	h := sha256.New()
	h.Write([]byte(secretBoxLabel))
	h.Write([]byte(rootSecret))
	return &SecretBox{key: h.Sum(nil)}, nil
}

// Seal encrypts plaintext and returns the base64-encoded stored form
// nonce||ciphertext||tag.
func (b *SecretBox) Seal(plaintext string) (string, error) {
	nonce, ciphertext, err := Encrypt(b.key, []byte(plaintext))
	if err != nil {
		return "", err
	}

	blob := make([]byte, 0, len(nonce)+len(ciphertext))
	blob = append(blob, nonce...)
	blob = append(blob, ciphertext...)
	return base64.StdEncoding.EncodeToString(blob), nil
}

// Open decrypts a value previously produced by Seal. It fails closed with
// ErrDecryptionFailed (a Crypto-kind error to callers) on any tag mismatch,
// including tampered ciphertext or a box derived from a different secret.
func (b *SecretBox) Open(stored string) (string, error) {
	blob, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	if len(blob) < NonceSize {
		return "", ErrDecryptionFailed
	}

	nonce, ciphertext := blob[:NonceSize], blob[NonceSize:]
	plaintext, err := Decrypt(b.key, nonce, ciphertext)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}
