package credentials

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

const localPrefix = "v1:"

// Local seals with XChaCha20-Poly1305 under a process-held 32-byte key.
type Local struct {
	aead cipher.AEAD
}

// ParseKey accepts a 32-byte key as hex or base64 (standard or URL alphabet).
func ParseKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("CREDENTIAL_SEAL_KEY is required")
	}
	if len(raw) == 2*chacha20poly1305.KeySize {
		if key, err := hex.DecodeString(raw); err == nil {
			return key, nil
		}
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		key, err := enc.DecodeString(raw)
		if err == nil && len(key) == chacha20poly1305.KeySize {
			return key, nil
		}
	}
	return nil, fmt.Errorf("CREDENTIAL_SEAL_KEY must encode exactly %d bytes as hex or base64", chacha20poly1305.KeySize)
}

// NewLocal returns a Local sealer for key.
func NewLocal(key []byte) (*Local, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("credential seal key: %w", err)
	}
	return &Local{aead: aead}, nil
}

func (l *Local) Seal(_ context.Context, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, l.aead.NonceSize(), l.aead.NonceSize()+len(plaintext)+chacha20poly1305.Overhead)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate seal nonce: %w", err)
	}
	sealed := l.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return localPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (l *Local) Open(_ context.Context, sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	encoded, ok := strings.CutPrefix(sealed, localPrefix)
	if !ok {
		return "", ErrUnknownFormat
	}
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil || len(raw) < l.aead.NonceSize() {
		return "", ErrUnknownFormat
	}
	nonce, ciphertext := raw[:l.aead.NonceSize()], raw[l.aead.NonceSize():]
	plaintext, err := l.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("open sealed credential: %w", err)
	}
	return string(plaintext), nil
}
