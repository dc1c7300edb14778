package mailing

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/ignite/outreach-core/internal/domain"
)

const nonceSize = 12

var (
	ErrNoCredentials = errors.New("inbox has no SMTP password")
	ErrNoKey         = errors.New("encryption key not configured")
	ErrKeyMismatch   = errors.New("password encrypted with a different key")
)

// CredentialResolver turns stored inbox credential material into usable SMTP
// credentials. Encrypted passwords are AES-256-GCM with the nonce prepended,
// tagged with the id of the key that sealed them.
type CredentialResolver struct {
	aead  cipher.AEAD
	keyID string
}

// NewCredentialResolver parses a base64 32-byte key. An empty key yields a
// resolver that only accepts legacy plaintext passwords.
func NewCredentialResolver(keyB64, keyID string) (*CredentialResolver, error) {
	r := &CredentialResolver{keyID: keyID}
	if keyB64 == "" {
		return r, nil
	}
	key, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return nil, fmt.Errorf("decode encryption key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	r.aead = aead
	return r, nil
}

func (r *CredentialResolver) Decrypt(data []byte) (string, error) {
	if r.aead == nil {
		return "", ErrNoKey
	}
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}
	plain, err := r.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt password: %w", err)
	}
	return string(plain), nil
}

// Resolve prefers the encrypted password and falls back to plaintext.
func (r *CredentialResolver) Resolve(c *domain.InboxCredentials) (*domain.SMTPCredentials, error) {
	var password string
	switch {
	case len(c.PasswordEncrypted) > 0:
		if c.EncryptionKeyID != nil && *c.EncryptionKeyID != "" && r.keyID != "" && *c.EncryptionKeyID != r.keyID {
			return nil, fmt.Errorf("inbox %s: key %q, resolver has %q: %w", c.InboxID, *c.EncryptionKeyID, r.keyID, ErrKeyMismatch)
		}
		p, err := r.Decrypt(c.PasswordEncrypted)
		if err != nil {
			return nil, fmt.Errorf("inbox %s: %w", c.InboxID, err)
		}
		password = p
	case c.SMTPPassword != nil && *c.SMTPPassword != "":
		password = *c.SMTPPassword
	default:
		return nil, fmt.Errorf("inbox %s: %w", c.InboxID, ErrNoCredentials)
	}

	username := c.SMTPUsername
	if username == "" {
		username = c.Email
	}
	return &domain.SMTPCredentials{
		Host:     c.SMTPHost,
		Port:     c.SMTPPort,
		Username: username,
		Password: password,
	}, nil
}
