// Package crypto implements record-level encryption at rest:
// AES-256-GCM sealing with either a caller-supplied 32-byte key or one
// derived from a password via PBKDF2-HMAC-SHA-256. Grounded on
// pkg/security/secrets.go's SecretsManager (AES-256-GCM, nonce-prepended
// ciphertext, password-derived keys) and internal/storage/crypto.go's
// EncryptValue/DecryptValue pair, merged into one service and extended
// with PBKDF2 key derivation and an explicit key identifier for
// key-rotation bookkeeping.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/bobboyms/docengine/internal/engineerr"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// NonceSize is the GCM nonce length in bytes.
const NonceSize = 12

// TagSize is the GCM authentication tag length in bytes.
const TagSize = 16

// SaltSize is the PBKDF2 salt length in bytes.
const SaltSize = 32

// MinIterations is the lowest PBKDF2 iteration count DeriveKey accepts.
const MinIterations = 1000

// Key is a named 32-byte AES-256 key. KeyID is retained so key-rotation
// records can name which key encrypted a given record without storing
// the key material itself.
type Key struct {
	KeyID string
	Bytes [KeySize]byte
}

// NewKey generates a random 32-byte key with a freshly minted hex key
// id.
func NewKey() (Key, error) {
	var k Key
	if _, err := io.ReadFull(rand.Reader, k.Bytes[:]); err != nil {
		return Key{}, &engineerr.EncryptionError{Reason: "generate key: " + err.Error()}
	}
	idBytes := make([]byte, 8)
	if _, err := io.ReadFull(rand.Reader, idBytes); err != nil {
		return Key{}, &engineerr.EncryptionError{Reason: "generate key id: " + err.Error()}
	}
	k.KeyID = hex.EncodeToString(idBytes)
	return k, nil
}

// KeyFromBytes wraps caller-supplied key material, which must be
// exactly KeySize bytes.
func KeyFromBytes(keyID string, raw []byte) (Key, error) {
	if len(raw) != KeySize {
		return Key{}, &engineerr.EncryptionError{Reason: "key must be 32 bytes"}
	}
	var k Key
	k.KeyID = keyID
	copy(k.Bytes[:], raw)
	return k, nil
}

// DerivedKey is the result of deriving a key from a password: the key
// itself plus the salt and iteration count needed to re-derive it.
type DerivedKey struct {
	Key        Key
	Salt       []byte
	Iterations int
}

// DeriveKey derives a 32-byte key from password using PBKDF2-HMAC-SHA-256.
// iterations must be at least MinIterations. A random salt is generated
// unless the caller passes a non-empty salt of exactly SaltSize bytes
// (for re-deriving a previously generated key).
func DeriveKey(password string, iterations int, salt []byte) (DerivedKey, error) {
	if iterations < MinIterations {
		return DerivedKey{}, &engineerr.EncryptionError{Reason: "iterations below minimum"}
	}
	if len(salt) == 0 {
		salt = make([]byte, SaltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return DerivedKey{}, &engineerr.EncryptionError{Reason: "generate salt: " + err.Error()}
		}
	} else if len(salt) != SaltSize {
		return DerivedKey{}, &engineerr.EncryptionError{Reason: "salt must be 32 bytes"}
	}

	derived := pbkdf2.Key([]byte(password), salt, iterations, KeySize, sha256.New)
	key, err := KeyFromBytes(hex.EncodeToString(salt[:8]), derived)
	if err != nil {
		return DerivedKey{}, err
	}
	return DerivedKey{Key: key, Salt: salt, Iterations: iterations}, nil
}

// Service encrypts and decrypts opaque values at rest under a single
// active key.
type Service struct {
	key Key
}

// NewService builds a Service sealing records under key.
func NewService(key Key) *Service {
	return &Service{key: key}
}

// KeyID reports the key identifier records sealed by this Service carry.
func (s *Service) KeyID() string {
	return s.key.KeyID
}

// Encrypt seals plaintext under the service's key, returning
// nonce(12) || tag(16) || ciphertext. additionalData is authenticated
// but not encrypted (pass nil if the caller has none).
func (s *Service) Encrypt(plaintext, additionalData []byte) ([]byte, error) {
	gcm, err := s.gcm()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, &engineerr.EncryptionError{Reason: "generate nonce: " + err.Error()}
	}
	sealed := gcm.Seal(nil, nonce, plaintext, additionalData)
	split := len(sealed) - TagSize
	out := make([]byte, 0, NonceSize+len(sealed))
	out = append(out, nonce...)
	out = append(out, sealed[split:]...)
	return append(out, sealed[:split]...), nil
}

// Decrypt opens a blob produced by Encrypt. It fails on any tampering
// (authentication-tag mismatch) and on a blob shorter than
// nonce+tag.
func (s *Service) Decrypt(blob, additionalData []byte) ([]byte, error) {
	if len(blob) < NonceSize+TagSize {
		return nil, &engineerr.EncryptionError{Reason: "ciphertext shorter than nonce+tag"}
	}
	gcm, err := s.gcm()
	if err != nil {
		return nil, err
	}
	nonce := blob[:NonceSize]
	sealed := make([]byte, 0, len(blob)-NonceSize)
	sealed = append(sealed, blob[NonceSize+TagSize:]...)
	sealed = append(sealed, blob[NonceSize:NonceSize+TagSize]...)
	plaintext, err := gcm.Open(nil, nonce, sealed, additionalData)
	if err != nil {
		return nil, &engineerr.EncryptionError{Reason: "authentication failed"}
	}
	return plaintext, nil
}

func (s *Service) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key.Bytes[:])
	if err != nil {
		return nil, &engineerr.EncryptionError{Reason: "create cipher: " + err.Error()}
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, &engineerr.EncryptionError{Reason: "create gcm: " + err.Error()}
	}
	return gcm, nil
}
