package tokenization

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Cipher encrypts and decrypts individual account fields.
// Empty values pass through unchanged in both directions.
type Cipher interface {
	Encrypt(value string) (string, error)
	Decrypt(token string) (string, error)
}

// tokenSeparator splits the key id from the sealed payload, e.g. "v2:base64...".
const tokenSeparator = ":"

var ErrUnknownKey = errors.New("token was sealed with an unknown key")

// TokenizationService seals account numbers and types with AES-GCM.
// It holds a key ring so tokens written under a retired key stay readable
// while new tokens are always written under the active key.
type TokenizationService struct {
	activeKeyID string
	keys        map[string][]byte
}

// NewTokenizationService creates a service with a single key registered under keyID.
//
// Parameters:
// - keyID string: identifier stored in every token produced by the service.
// - secret string: raw or base64 encoded AES key, or any passphrase.
//
// Returns:
// - *TokenizationService: the service.
func NewTokenizationService(keyID, secret string) *TokenizationService {
	return &TokenizationService{
		activeKeyID: keyID,
		keys:        map[string][]byte{keyID: deriveKey(secret)},
	}
}

// NewKeyRing creates a service from several keys; activeKeyID must be one of them.
func NewKeyRing(activeKeyID string, secrets map[string]string) (*TokenizationService, error) {
	if _, ok := secrets[activeKeyID]; !ok {
		return nil, fmt.Errorf("active key %q is not in the key ring", activeKeyID)
	}
	keys := make(map[string][]byte, len(secrets))
	for id, secret := range secrets {
		if strings.Contains(id, tokenSeparator) {
			return nil, fmt.Errorf("key id %q must not contain %q", id, tokenSeparator)
		}
		keys[id] = deriveKey(secret)
	}
	return &TokenizationService{activeKeyID: activeKeyID, keys: keys}, nil
}

// KeyIDs lists the registered key ids in lexical order.
func (s *TokenizationService) KeyIDs() []string {
	ids := make([]string, 0, len(s.keys))
	for id := range s.keys {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Encrypt seals value under the active key.
func (s *TokenizationService) Encrypt(value string) (string, error) {
	if value == "" {
		return "", nil
	}

	gcm, err := newGCM(s.keys[s.activeKeyID])
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, []byte(value), []byte(s.activeKeyID))
	return s.activeKeyID + tokenSeparator + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a token produced by Encrypt under any key in the ring.
func (s *TokenizationService) Decrypt(token string) (string, error) {
	if token == "" {
		return "", nil
	}

	keyID, payload, found := strings.Cut(token, tokenSeparator)
	if !found {
		return "", errors.New("malformed token")
	}
	key, ok := s.keys[keyID]
	if !ok {
		return "", ErrUnknownKey
	}

	sealed, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("malformed token: %w", err)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	if len(sealed) < gcm.NonceSize() {
		return "", errors.New("token too short")
	}

	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ciphertext, []byte(keyID))
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// Rotate re-seals a token under the active key. Tokens already on the active key are returned as-is.
func (s *TokenizationService) Rotate(token string) (string, error) {
	if token == "" || strings.HasPrefix(token, s.activeKeyID+tokenSeparator) {
		return token, nil
	}
	plain, err := s.Decrypt(token)
	if err != nil {
		return "", err
	}
	return s.Encrypt(plain)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// deriveKey accepts a base64 encoded AES key, a raw 16/24/32 byte key, or a passphrase
// which is stretched to 32 bytes with SHA-256.
func deriveKey(secret string) []byte {
	if decoded, err := base64.StdEncoding.DecodeString(secret); err == nil && validKeyLength(len(decoded)) {
		return decoded
	}
	if validKeyLength(len(secret)) {
		return []byte(secret)
	}
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}

func validKeyLength(n int) bool {
	return n == 16 || n == 24 || n == 32
}
