package snapshot

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"

	"github.com/volodymyrd/echarlar/pkg/crypto/adaptive"
)

// Encryption errors.
var (
	ErrPassphraseTooWeak = errors.New("snapshot: passphrase too weak (minimum 8 characters)")
	ErrEncrypted         = errors.New("snapshot: snapshot is encrypted and no passphrase is configured")
	ErrNotEncrypted      = errors.New("snapshot: passphrase configured but snapshot is not encrypted")
	ErrDecryptionFailed  = errors.New("snapshot: decryption failed - wrong passphrase or corrupted data")
)

const (
	// MinPassphraseLength is the minimum passphrase length.
	MinPassphraseLength = 8

	// SaltLength is the per-snapshot salt length.
	SaltLength = 16

	// Argon2id parameters for key derivation from passphrase.
	argon2Time    = 3
	argon2Memory  = 64 * 1024
	argon2Threads = 4

	// dataKeyInfo labels the HKDF expansion of the Argon2 master key.
	dataKeyInfo = "echarlar snapshot data v1"
)

// EncryptionConfig configures snapshot encryption. A zero value disables
// encryption.
type EncryptionConfig struct {
	// Passphrase derives the encryption key. Kept as bytes so callers can
	// wipe it with ZeroKey.
	Passphrase []byte

	// Algorithm is "aes-gcm" or "chacha20-poly1305". Empty selects the
	// preferred algorithm for the host.
	Algorithm string
}

// Enabled reports whether snapshots are encrypted.
func (c EncryptionConfig) Enabled() bool {
	return len(c.Passphrase) > 0
}

// Validate validates the encryption configuration.
func (c EncryptionConfig) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if len(c.Passphrase) < MinPassphraseLength {
		return ErrPassphraseTooWeak
	}
	if _, err := adaptive.ParseCipherType(c.Algorithm); err != nil {
		return err
	}
	return nil
}

// newCipher derives the data key for salt and builds the cipher.
func newCipher(passphrase, salt []byte, algorithm string) (*adaptive.Cipher, error) {
	kind, err := adaptive.ParseCipherType(algorithm)
	if err != nil {
		return nil, err
	}
	key, err := deriveKey(passphrase, salt)
	if err != nil {
		return nil, err
	}
	defer ZeroKey(key)
	return adaptive.NewWithType(key, kind)
}

// deriveKey stretches the passphrase with Argon2id and expands the result
// into the data key with HKDF.
func deriveKey(passphrase, salt []byte) ([]byte, error) {
	if len(salt) != SaltLength {
		return nil, fmt.Errorf("snapshot: salt must be %d bytes, got %d", SaltLength, len(salt))
	}
	master := argon2.IDKey(passphrase, salt, argon2Time, argon2Memory, argon2Threads, adaptive.KeySize)
	defer ZeroKey(master)

	key := make([]byte, adaptive.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, salt, []byte(dataKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("snapshot: derive key: %w", err)
	}
	return key, nil
}

func newSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("snapshot: generate salt: %w", err)
	}
	return salt, nil
}

// ZeroKey overwrites key material in memory.
func ZeroKey(key []byte) {
	for i := range key {
		key[i] = 0
	}
}
