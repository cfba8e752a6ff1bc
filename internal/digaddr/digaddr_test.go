package digaddr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveIsDeterministicAndPrefixed(t *testing.T) {
	pub := []byte("a fake ed25519 public key, 32 bytes long!!")

	a := Derive(pub)
	b := Derive(pub)

	require.Equal(t, a, b)
	require.Equal(t, byte(0xfd), a[0])
}

func TestDeriveDiffersForDifferentKeys(t *testing.T) {
	a := Derive([]byte("key-one"))
	b := Derive([]byte("key-two"))
	require.NotEqual(t, a, b)
}

func TestFormatAndParseOverlayRoundTrip(t *testing.T) {
	addr := Derive([]byte("round trip key"))
	peerID := "12D3KooWExamplePeerID"

	formatted := FormatOverlay(addr, 4242, peerID)
	require.True(t, IsOverlay(formatted))

	gotAddr, gotPort, gotPeerID, err := ParseOverlay(formatted)
	require.NoError(t, err)
	require.Equal(t, addr, gotAddr)
	require.Equal(t, 4242, gotPort)
	require.Equal(t, peerID, gotPeerID)
}

func TestFormatOverlayWebSocketParsesAsOverlay(t *testing.T) {
	addr := Derive([]byte("ws key"))
	formatted := FormatOverlayWebSocket(addr, 8000, "peer-x")
	require.True(t, IsOverlay(formatted))
}

func TestIsOverlayRejectsNonIpv6(t *testing.T) {
	require.False(t, IsOverlay("/ip4/127.0.0.1/tcp/4001"))
	require.False(t, IsOverlay("not a multiaddr"))
}
