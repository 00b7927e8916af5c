package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/aretw0/autopilot/pkg/ports"
)

const encryptedPrefix = "enc:v1:"

// ErrNotEncrypted is returned when a covered key holds a plain value.
var ErrNotEncrypted = errors.New("value is not encrypted")

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte

	// Keys restricts encryption to these state keys. Empty means every key.
	Keys []string
}

type encryptionMiddleware struct {
	next   ports.KVStore
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that encrypts values at rest using AES-GCM.
func NewEncryptionMiddleware(config EncryptionConfig) (Middleware, error) {
	if len(config.ActiveKey) != 32 {
		return nil, errors.New("active key must be 32 bytes (AES-256)")
	}
	for i, k := range config.FallbackKeys {
		if len(k) != 32 {
			return nil, fmt.Errorf("fallback key %d must be 32 bytes (AES-256)", i)
		}
	}
	return func(next ports.KVStore) ports.KVStore {
		return &encryptionMiddleware{
			next:   next,
			config: config,
		}
	}, nil
}

func (m *encryptionMiddleware) covers(key string) bool {
	return len(m.config.Keys) == 0 || slices.Contains(m.config.Keys, key)
}

func (m *encryptionMiddleware) Get(ctx context.Context, key string) (string, error) {
	val, err := m.next.Get(ctx, key)
	if err != nil || !m.covers(key) {
		return val, err
	}
	plain, err := m.open(val)
	if err != nil {
		return "", fmt.Errorf("state %q: %w", key, err)
	}
	return plain, nil
}

func (m *encryptionMiddleware) Set(ctx context.Context, key, value string) error {
	if !m.covers(key) {
		return m.next.Set(ctx, key, value)
	}
	ciphertext, err := encrypt([]byte(value), m.config.ActiveKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt state %q: %w", key, err)
	}
	return m.next.Set(ctx, key, encryptedPrefix+base64.StdEncoding.EncodeToString(ciphertext))
}

func (m *encryptionMiddleware) Delete(ctx context.Context, keys ...string) error {
	return m.next.Delete(ctx, keys...)
}

func (m *encryptionMiddleware) Clear(ctx context.Context) error {
	return m.next.Clear(ctx)
}

func (m *encryptionMiddleware) All(ctx context.Context) (map[string]string, error) {
	all, err := m.next.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(all))
	for k, v := range all {
		if !m.covers(k) {
			out[k] = v
			continue
		}
		plain, err := m.open(v)
		if err != nil {
			return nil, fmt.Errorf("state %q: %w", k, err)
		}
		out[k] = plain
	}
	return out, nil
}

func (m *encryptionMiddleware) open(val string) (string, error) {
	encoded, ok := strings.CutPrefix(val, encryptedPrefix)
	if !ok {
		// Fail secure: a configured key never falls back to plain text.
		return "", ErrNotEncrypted
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}
	plain, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// Helpers

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	return gcm.Open(nil, nonce, ciphertext[gcm.NonceSize():], nil)
}
