// Package digaddr derives and formats the crypto-IPv6 overlay addresses
// that identify dig nodes independent of their real transport address.
package digaddr

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strconv"
	"strings"

	ma "github.com/multiformats/go-multiaddr"
)

var errBadOverlayAddr = errors.New("malformed overlay ipv6")

// Ipv6 is a derived 16-byte overlay address, always prefixed 0xfd.
type Ipv6 [16]byte

// Derive computes the overlay address for a public key: 0xfd followed by
// the first 15 bytes of SHA-256(publicKey).
func Derive(publicKey []byte) Ipv6 {
	sum := sha256.Sum256(publicKey)
	var out Ipv6
	out[0] = 0xfd
	copy(out[1:], sum[:15])
	return out
}

// String renders the address as eight colon-separated 16-bit hex groups,
// e.g. "fd12:3456:789a:bcde:0123:4567:89ab:cdef".
func (a Ipv6) String() string {
	groups := make([]string, 8)
	for i := 0; i < 8; i++ {
		groups[i] = fmt.Sprintf("%02x%02x", a[i*2], a[i*2+1])
	}
	return strings.Join(groups, ":")
}

// IsOverlay reports whether a multiaddr string parses as an /ip6/fd00:.../
// overlay address.
func IsOverlay(multiAddr string) bool {
	addr, err := ma.NewMultiaddr(multiAddr)
	if err != nil {
		return false
	}
	ip6, err := addr.ValueForProtocol(ma.P_IP6)
	if err != nil {
		return false
	}
	return strings.HasPrefix(ip6, "fd")
}

// FormatOverlay renders the canonical overlay multiaddr for a crypto-IPv6,
// port, and peer-id: /ip6/<ipv6>/tcp/<port>/p2p/<peer-id>.
func FormatOverlay(addr Ipv6, port int, peerID string) string {
	return fmt.Sprintf("/ip6/%s/tcp/%d/p2p/%s", addr.String(), port, peerID)
}

// FormatOverlayWebSocket renders the WebSocket variant of the overlay
// multiaddr for nodes that only expose a WS listener.
func FormatOverlayWebSocket(addr Ipv6, port int, peerID string) string {
	return fmt.Sprintf("/ip6/%s/tcp/%d/ws/p2p/%s", addr.String(), port, peerID)
}

// ParseOverlay extracts the crypto-IPv6, port, and peer-id from an overlay
// multiaddr produced by FormatOverlay or FormatOverlayWebSocket.
func ParseOverlay(multiAddr string) (addr Ipv6, port int, peerID string, err error) {
	parsed, err := ma.NewMultiaddr(multiAddr)
	if err != nil {
		return Ipv6{}, 0, "", fmt.Errorf("parsing overlay multiaddr: %w", err)
	}

	ip6Str, err := parsed.ValueForProtocol(ma.P_IP6)
	if err != nil {
		return Ipv6{}, 0, "", fmt.Errorf("overlay multiaddr missing /ip6: %w", err)
	}
	addr, err = parseIpv6String(ip6Str)
	if err != nil {
		return Ipv6{}, 0, "", err
	}

	portStr, err := parsed.ValueForProtocol(ma.P_TCP)
	if err != nil {
		return Ipv6{}, 0, "", fmt.Errorf("overlay multiaddr missing /tcp: %w", err)
	}
	port, err = strconv.Atoi(portStr)
	if err != nil {
		return Ipv6{}, 0, "", fmt.Errorf("overlay multiaddr bad port %q: %w", portStr, err)
	}

	peerID, err = parsed.ValueForProtocol(ma.P_P2P)
	if err != nil {
		return Ipv6{}, 0, "", fmt.Errorf("overlay multiaddr missing /p2p: %w", err)
	}

	return addr, port, peerID, nil
}

// ParseIpv6String parses eight colon-separated 16-bit hex groups into an
// Ipv6, the inverse of String. Used by internal/protocol to read the
// crypto_ipv6 field advertised in a HANDSHAKE request.
func ParseIpv6String(s string) (Ipv6, error) {
	return parseIpv6String(s)
}

func parseIpv6String(s string) (Ipv6, error) {
	groups := strings.Split(s, ":")
	if len(groups) != 8 {
		return Ipv6{}, fmt.Errorf("%w: expected 8 hex groups, got %d", errBadOverlayAddr, len(groups))
	}
	var out Ipv6
	for i, g := range groups {
		v, err := strconv.ParseUint(g, 16, 16)
		if err != nil {
			return Ipv6{}, fmt.Errorf("%w: group %d %q: %v", errBadOverlayAddr, i, g, err)
		}
		out[i*2] = byte(v >> 8)
		out[i*2+1] = byte(v)
	}
	return out, nil
}
