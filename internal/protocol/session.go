package protocol

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"github.com/libp2p/go-libp2p/core/peer"
)

// SessionSecret is the 32-byte key derived via X25519+HKDF at the end of
// a successful HANDSHAKE, per §4.6.1. It is replaced wholesale on a
// re-handshake (no partial rekeying) and held in the Server's Sessions
// table. internal/privacy does not read it: address records are sealed
// with a key the node derives for itself.
type SessionSecret [32]byte

// Sessions is a per-peer secret store, one entry per currently
// handshaked remote.
type Sessions struct {
	mu      sync.RWMutex
	secrets map[peer.ID]SessionSecret
}

func NewSessions() *Sessions {
	return &Sessions{secrets: make(map[peer.ID]SessionSecret)}
}

func (s *Sessions) Set(id peer.ID, secret SessionSecret) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[id] = secret
}

func (s *Sessions) Get(id peer.ID) (SessionSecret, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	secret, ok := s.secrets[id]
	return secret, ok
}

func (s *Sessions) Drop(id peer.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.secrets, id)
}

// X25519KeyPair is a fresh ephemeral Diffie-Hellman keypair exchanged
// during HANDSHAKE, independent of the libp2p transport's own identity
// keypair (§9 "Exceptions -> explicit results": handshake failure is a
// returned error, never a panic, and never reuses the long-term libp2p
// key for the session secret).
type X25519KeyPair struct {
	Private [32]byte
	Public  [32]byte
}

func GenerateX25519KeyPair() (X25519KeyPair, error) {
	var kp X25519KeyPair
	if _, err := io.ReadFull(rand.Reader, kp.Private[:]); err != nil {
		return kp, fmt.Errorf("protocol: generating session keypair: %w", err)
	}
	pub, err := curve25519.X25519(kp.Private[:], curve25519.Basepoint)
	if err != nil {
		return kp, fmt.Errorf("protocol: deriving session public key: %w", err)
	}
	copy(kp.Public[:], pub)
	return kp, nil
}

// DeriveSessionSecret runs X25519(local.Private, remotePublic) through
// HKDF-SHA256 to produce the 32-byte shared secret for this session.
func DeriveSessionSecret(local X25519KeyPair, remotePublic [32]byte) (SessionSecret, error) {
	var out SessionSecret
	shared, err := curve25519.X25519(local.Private[:], remotePublic[:])
	if err != nil {
		return out, fmt.Errorf("protocol: computing shared secret: %w", err)
	}
	kdf := hkdf.New(newSHA256, shared, nil, []byte("dig-session-secret"))
	if _, err := io.ReadFull(kdf, out[:]); err != nil {
		return out, fmt.Errorf("protocol: expanding session secret: %w", err)
	}
	return out, nil
}
