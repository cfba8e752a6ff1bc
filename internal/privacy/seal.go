// Package privacy implements the privacy overlay (C9): periodic
// jittered peer announcements carrying scrambled metadata, and
// encrypted-for-self address records resolved via DHT, gossip, or a
// bootstrap fallback.
package privacy

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

var errCiphertextTooShort = errors.New("privacy: ciphertext too short")

// Seal encrypts plaintext with key (32 bytes) using XChaCha20-Poly1305,
// prefixing the random nonce to the ciphertext, the same wire shape the
// teacher's own aeadEncrypt/aeadDecrypt pair used for mixnet layers.
func Seal(key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("privacy: constructing AEAD: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("privacy: generating nonce: %w", err)
	}
	ct := aead.Seal(nil, nonce, plaintext, nil)
	return append(nonce, ct...), nil
}

// Open reverses Seal.
func Open(key, sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("privacy: constructing AEAD: %w", err)
	}
	if len(sealed) < chacha20poly1305.NonceSizeX {
		return nil, errCiphertextTooShort
	}
	nonce := sealed[:chacha20poly1305.NonceSizeX]
	ct := sealed[chacha20poly1305.NonceSizeX:]
	pt, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("privacy: decryption failed: %w", err)
	}
	return pt, nil
}
