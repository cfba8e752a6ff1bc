package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dig-network/dignode/internal/digaddr"
)

func TestDeriveSessionSecretSymmetric(t *testing.T) {
	a, err := GenerateX25519KeyPair()
	require.NoError(t, err)
	b, err := GenerateX25519KeyPair()
	require.NoError(t, err)

	secretFromA, err := DeriveSessionSecret(a, b.Public)
	require.NoError(t, err)
	secretFromB, err := DeriveSessionSecret(b, a.Public)
	require.NoError(t, err)

	require.Equal(t, secretFromA, secretFromB)
}

func TestDeriveSessionSecretDiffersPerPeer(t *testing.T) {
	a, _ := GenerateX25519KeyPair()
	b, _ := GenerateX25519KeyPair()
	c, _ := GenerateX25519KeyPair()

	withB, _ := DeriveSessionSecret(a, b.Public)
	withC, _ := DeriveSessionSecret(a, c.Public)
	require.NotEqual(t, withB, withC)
}

func TestSessionsSetGetDrop(t *testing.T) {
	s := NewSessions()
	_, ok := s.Get("peer-a")
	require.False(t, ok)

	var secret SessionSecret
	secret[0] = 0x42
	s.Set("peer-a", secret)

	got, ok := s.Get("peer-a")
	require.True(t, ok)
	require.Equal(t, secret, got)

	s.Drop("peer-a")
	_, ok = s.Get("peer-a")
	require.False(t, ok)
}

func TestValidRangeBoundaries(t *testing.T) {
	const size = int64(1000)
	require.True(t, validRange(0, size-1, size))
	require.True(t, validRange(0, 0, size))
	require.True(t, validRange(500, 999, size))
	require.False(t, validRange(0, size, size))
	require.False(t, validRange(-1, 10, size))
	require.False(t, validRange(500, 499, size))
}

func TestIntersectFeatures(t *testing.T) {
	got := intersect([]string{"a", "b", "c"}, []string{"b", "c", "d"})
	require.ElementsMatch(t, []string{"b", "c"}, got)
}

func TestParseCryptoIPv6RoundTrip(t *testing.T) {
	pub := []byte("some-public-key-material-bytes!")
	addr := digaddr.Derive(pub)
	parsed, err := parseCryptoIPv6(addr.String())
	require.NoError(t, err)
	require.Equal(t, addr, parsed)
}

func TestEqualFoldHex(t *testing.T) {
	require.True(t, equalFoldHex("ABCDEF", "abcdef"))
	require.False(t, equalFoldHex("ABCDEF", "abcdee"))
}
