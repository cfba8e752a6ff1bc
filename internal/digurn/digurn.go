// Package digurn parses and formats dig URNs of the shape
// urn:dig:chia:<store-id>[:<root-hash>][/<resource-key>].
package digurn

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dig-network/dignode/internal/digerr"
)

const defaultResourceKey = "index.html"

var (
	hexIDPattern = regexp.MustCompile(`^[a-fA-F0-9]{32,128}$`)
	// scheme, store-id, optional ":root-hash", optional "/resource-key"
	urnPattern = regexp.MustCompile(`^urn:dig:chia:([a-fA-F0-9]{32,128})(?::([a-fA-F0-9]{32,128}))?(?:/(.+))?$`)
)

// URN is a parsed dig resource locator.
type URN struct {
	StoreID      string
	RootHash     string // empty if absent
	ResourceKey  string // defaults to "index.html"
}

// Parse parses s into a URN, case-insensitively on the scheme prefix.
// An unparseable input yields digerr.ErrInvalidURN.
func Parse(s string) (URN, error) {
	lowered := lowerScheme(s)
	m := urnPattern.FindStringSubmatch(lowered)
	if m == nil {
		return URN{}, fmt.Errorf("%w: %q", digerr.ErrInvalidURN, s)
	}

	resourceKey := m[3]
	if resourceKey == "" {
		resourceKey = defaultResourceKey
	}

	return URN{
		StoreID:     m[1],
		RootHash:    m[2],
		ResourceKey: resourceKey,
	}, nil
}

// Format renders the canonical string form of a URN. storeID is required;
// rootHash and resourceKey may be empty, in which case they are omitted
// (resourceKey omission still round-trips to "index.html" on Parse).
func Format(storeID, rootHash, resourceKey string) string {
	var b strings.Builder
	b.WriteString("urn:dig:chia:")
	b.WriteString(storeID)
	if rootHash != "" {
		b.WriteString(":")
		b.WriteString(rootHash)
	}
	if resourceKey != "" && resourceKey != defaultResourceKey {
		b.WriteString("/")
		b.WriteString(resourceKey)
	}
	return b.String()
}

// ValidStoreID reports whether s matches the store-id/root-hash grammar:
// 32 to 128 lowercase-or-uppercase hex characters.
func ValidStoreID(s string) bool {
	return hexIDPattern.MatchString(s)
}

// lowerScheme lowercases only the "urn:dig:chia:" prefix, leaving the
// store-id/root-hash/resource-key casing untouched (resource keys may be
// case-sensitive paths).
func lowerScheme(s string) string {
	const schemeLen = len("urn:dig:chia:")
	if len(s) < schemeLen {
		return s
	}
	return strings.ToLower(s[:schemeLen]) + s[schemeLen:]
}
