// Package adaptive provides authenticated encryption that picks its
// algorithm from the host CPU.
//
//   - AES-256-GCM where the architecture has hardware AES (amd64, arm64)
//   - ChaCha20-Poly1305 everywhere else
//
// Each sealed message carries its own random nonce as a prefix:
//
//	c, err := adaptive.New(key)
//	sealed, err := c.Seal(plaintext, aad)
//	plaintext, err := c.Open(sealed, aad)
package adaptive
