package adaptive

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// CipherType identifies the cipher algorithm.
type CipherType string

const (
	CipherAESGCM   CipherType = "aes-gcm"
	CipherChaCha20 CipherType = "chacha20-poly1305"
)

// KeySize is the key length accepted by both algorithms.
const KeySize = 32

// ErrOpen is returned when a ciphertext fails authentication.
var ErrOpen = errors.New("adaptive: message authentication failed")

// ParseCipherType parses an algorithm name. An empty name selects the
// preferred algorithm for this host.
func ParseCipherType(s string) (CipherType, error) {
	switch t := CipherType(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return Preferred(), nil
	case CipherAESGCM, CipherChaCha20:
		return t, nil
	default:
		return "", fmt.Errorf("adaptive: unknown cipher type %q", s)
	}
}

// Preferred returns the algorithm New selects on this host.
func Preferred() CipherType {
	if hasAESNI() {
		return CipherAESGCM
	}
	return CipherChaCha20
}

// Cipher is an AEAD with nonce management. It is safe for concurrent use.
type Cipher struct {
	kind CipherType
	aead cipher.AEAD
}

// New creates a cipher of the preferred type for this host.
func New(key []byte) (*Cipher, error) {
	return NewWithType(key, Preferred())
}

// NewWithType creates a cipher of the specified type. The key must be
// KeySize bytes.
func NewWithType(key []byte, kind CipherType) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("adaptive: key must be %d bytes, got %d", KeySize, len(key))
	}

	var (
		aead cipher.AEAD
		err  error
	)
	switch kind {
	case CipherAESGCM:
		var block cipher.Block
		if block, err = aes.NewCipher(key); err == nil {
			aead, err = cipher.NewGCM(block)
		}
	case CipherChaCha20:
		aead, err = chacha20poly1305.New(key)
	default:
		return nil, fmt.Errorf("adaptive: unknown cipher type %q", kind)
	}
	if err != nil {
		return nil, err
	}
	return &Cipher{kind: kind, aead: aead}, nil
}

// Type returns the cipher type.
func (c *Cipher) Type() CipherType {
	return c.kind
}

// Overhead returns the bytes Seal adds to a plaintext.
func (c *Cipher) Overhead() int {
	return c.aead.NonceSize() + c.aead.Overhead()
}

// Seal encrypts and authenticates plaintext and additionalData. The
// result is nonce || ciphertext || tag.
func (c *Cipher) Seal(plaintext, additionalData []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return c.aead.Seal(nonce, nonce, plaintext, additionalData), nil
}

// Open reverses Seal. It returns ErrOpen when the key, the additional
// data or the ciphertext does not match.
func (c *Cipher) Open(sealed, additionalData []byte) ([]byte, error) {
	n := c.aead.NonceSize()
	if len(sealed) < n+c.aead.Overhead() {
		return nil, ErrOpen
	}
	plain, err := c.aead.Open(nil, sealed[:n], sealed[n:], additionalData)
	if err != nil {
		return nil, ErrOpen
	}
	return plain, nil
}

// hasAESNI reports whether Go's crypto/aes uses hardware instructions on
// this architecture.
func hasAESNI() bool {
	switch runtime.GOARCH {
	case "amd64", "arm64":
		return true
	default:
		return false
	}
}
