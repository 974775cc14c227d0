package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Vault decrypts per-tenant processor credential blobs. Blob format is
// "iv:authTag:ciphertext" with each segment base64-encoded; the cipher is
// AES-256-GCM keyed by SHA-256 of the master secret.
type Vault struct {
	key [32]byte
}

var ErrMalformedBlob = errors.New("vault: malformed credential blob")

func New(masterSecret string) *Vault {
	return &Vault{key: sha256.Sum256([]byte(masterSecret))}
}

// Decrypt returns the credential document stored in blob.
func (v *Vault) Decrypt(blob string) (map[string]string, error) {
	parts := strings.Split(blob, ":")
	if len(parts) != 3 {
		return nil, ErrMalformedBlob
	}

	iv, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, ErrMalformedBlob
	}
	tag, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, ErrMalformedBlob
	}
	ciphertext, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, ErrMalformedBlob
	}

	block, err := aes.NewCipher(v.key[:])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, len(iv))
	if err != nil {
		return nil, ErrMalformedBlob
	}

	// GCM expects the tag appended to the ciphertext.
	plaintext, err := gcm.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return nil, fmt.Errorf("vault: decrypt failed: %w", err)
	}

	var creds map[string]string
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return nil, fmt.Errorf("vault: invalid credential document: %w", err)
	}
	return creds, nil
}

// Encrypt seals a credential document into the blob format. Used when
// onboarding tenant credentials and in tests.
func (v *Vault) Encrypt(creds map[string]string) (string, error) {
	plaintext, err := json.Marshal(creds)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(v.key[:])
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	iv := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nil, iv, plaintext, nil)
	tagStart := len(sealed) - gcm.Overhead()
	ciphertext, tag := sealed[:tagStart], sealed[tagStart:]

	return strings.Join([]string{
		base64.StdEncoding.EncodeToString(iv),
		base64.StdEncoding.EncodeToString(tag),
		base64.StdEncoding.EncodeToString(ciphertext),
	}, ":"), nil
}
