package node

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/libp2p/go-libp2p/core/crypto"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/dig-network/dignode/internal/digaddr"
)

const identityFileName = "identity.key"

var identityMagic = []byte("DIGK1") // file header for identity.key

// Identity bundles the long-term transport key pair with its derived
// overlay address, the two pieces of key material every other
// component is constructed from (§4.12 step (b)).
type Identity struct {
	Priv       crypto.PrivKey
	Pub        crypto.PubKey
	CryptoIPv6 digaddr.Ipv6
}

// loadOrCreateIdentity reads <digHome>/identity.key, generating and
// persisting a fresh Ed25519 key pair on first run. The key is sealed
// at rest with passphrase, exactly as the teacher seals env.enc: a
// random salt feeds Argon2id, deriving the XChaCha20-Poly1305 key that
// wraps the marshaled private key. The crypto-IPv6 is always re-derived
// from the public key rather than cached, so a corrupted derivation can
// never diverge from the key on disk.
func loadOrCreateIdentity(digHome string, passphrase []byte) (Identity, error) {
	if err := os.MkdirAll(digHome, 0o700); err != nil {
		return Identity{}, fmt.Errorf("node: ensuring dig home: %w", err)
	}

	path := filepath.Join(digHome, identityFileName)
	if b, err := os.ReadFile(path); err == nil {
		priv, err := openIdentity(b, passphrase)
		if err != nil {
			return Identity{}, fmt.Errorf("node: unlocking identity key: %w", err)
		}
		return identityFromKey(priv)
	} else if !os.IsNotExist(err) {
		return Identity{}, fmt.Errorf("node: reading identity key: %w", err)
	}

	priv, _, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return Identity{}, fmt.Errorf("node: generating identity key: %w", err)
	}
	sealed, err := sealIdentity(priv, passphrase)
	if err != nil {
		return Identity{}, fmt.Errorf("node: sealing identity key: %w", err)
	}
	if err := os.WriteFile(path, sealed, 0o600); err != nil {
		return Identity{}, fmt.Errorf("node: persisting identity key: %w", err)
	}
	return identityFromKey(priv)
}

// backupAndRecreateIdentity moves an identity.key that fails to unlock
// (wrong passphrase, corruption) aside as identity.key.backup and
// generates a fresh one, mirroring the teacher's auto-backup-and-recreate
// path in exports.go rather than leaving the node permanently stuck.
func backupAndRecreateIdentity(digHome string, passphrase []byte) (Identity, error) {
	path := filepath.Join(digHome, identityFileName)
	backupPath := path + ".backup"
	if err := os.Rename(path, backupPath); err != nil && !os.IsNotExist(err) {
		return Identity{}, fmt.Errorf("node: backing up identity key: %w", err)
	}
	return loadOrCreateIdentity(digHome, passphrase)
}

func identityFromKey(priv crypto.PrivKey) (Identity, error) {
	pub := priv.GetPublic()
	raw, err := pub.Raw()
	if err != nil {
		return Identity{}, fmt.Errorf("node: reading public key bytes: %w", err)
	}
	return Identity{Priv: priv, Pub: pub, CryptoIPv6: digaddr.Derive(raw)}, nil
}

// kdf derives a 32B key from passphrase and salt using Argon2id, same
// parameters as the teacher's env_encrypt.go kdf.
func kdf(pass, salt []byte) []byte {
	return argon2.IDKey(pass, salt, 2, 64*1024, 1, 32)
}

// sealIdentity encrypts priv's marshaled bytes into MAGIC|salt|nonce|len|ct,
// the same on-disk layout the teacher uses for env.enc.
func sealIdentity(priv crypto.PrivKey, passphrase []byte) ([]byte, error) {
	plain, err := crypto.MarshalPrivateKey(priv)
	if err != nil {
		return nil, err
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	key := kdf(passphrase, salt)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	ct := aead.Seal(nil, nonce, plain, nil)

	out := make([]byte, 0, len(identityMagic)+16+len(nonce)+4+len(ct))
	out = append(out, identityMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	var lbuf [4]byte
	binary.BigEndian.PutUint32(lbuf[:], uint32(len(plain)))
	out = append(out, lbuf[:]...)
	out = append(out, ct...)
	return out, nil
}

func openIdentity(b, passphrase []byte) (crypto.PrivKey, error) {
	min := len(identityMagic) + 16 + chacha20poly1305.NonceSizeX + 4
	if len(b) < min {
		return nil, errors.New("identity.key too short")
	}
	if string(b[:len(identityMagic)]) != string(identityMagic) {
		return nil, errors.New("bad identity.key magic")
	}
	offset := len(identityMagic)
	salt := b[offset : offset+16]
	offset += 16
	nonce := b[offset : offset+chacha20poly1305.NonceSizeX]
	offset += chacha20poly1305.NonceSizeX
	offset += 4 // length prefix, unused on open
	ct := b[offset:]

	key := kdf(passphrase, salt)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	plain, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, errors.New("identity.key decrypt failed (wrong passphrase?)")
	}
	return crypto.UnmarshalPrivateKey(plain)
}
