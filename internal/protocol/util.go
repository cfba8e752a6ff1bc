package protocol

import (
	"io"
	"strings"

	"github.com/dig-network/dignode/internal/digaddr"
)

// knownFeatures is this node's software's full feature vocabulary;
// CompatibleFeatures in a handshake response is the intersection with
// whatever the remote advertised.
var knownFeatures = []string{
	"range-download",
	"parallel-chunk-download",
	"dht-discovery",
	"gossip-discovery",
	"privacy-overlay",
}

func intersect(a, b []string) []string {
	set := make(map[string]bool, len(b))
	for _, v := range b {
		set[v] = true
	}
	out := make([]string, 0, len(a))
	for _, v := range a {
		if set[v] {
			out = append(out, v)
		}
	}
	return out
}

func parseCryptoIPv6(s string) (digaddr.Ipv6, error) {
	return digaddr.ParseIpv6String(s)
}

func equalFoldHex(a, b string) bool {
	return strings.EqualFold(a, b)
}

func copyAll(dst io.Writer, src io.Reader) (int64, error) {
	return io.Copy(dst, src)
}

func copyRange(dst io.Writer, src io.ReadSeeker, offset, length int64) (int64, error) {
	if _, err := src.Seek(offset, io.SeekStart); err != nil {
		return 0, err
	}
	return io.CopyN(dst, src, length)
}

// validRange reports whether [start, end] is an inclusive, in-bounds
// byte range of a file of the given size — end == size-1 is the full
// remainder and is valid; end == size is one byte out of bounds.
func validRange(start, end, size int64) bool {
	return start >= 0 && end >= start && end < size
}
