package ratelimit

import (
	"path"
	"regexp"
	"strings"

	"github.com/dig-network/dignode/internal/digurn"
)

var requestTypeVocabulary = map[string]struct{}{
	"HANDSHAKE":               {},
	"LIST_STORES":             {},
	"FIND_STORE":              {},
	"GET_STORE_CONTENT":       {},
	"GET_FILE_RANGE":          {},
	"GET_URN":                 {},
	"PEER_EXCHANGE":           {},
	"PRIVACY_PEER_DISCOVERY":  {},
}

// ValidStoreID reports whether s matches the store-id grammar (§3): 32
// to 128 lowercase-or-uppercase hex characters. Delegates to digurn so
// the two packages never drift on the grammar.
func ValidStoreID(s string) bool {
	return digurn.ValidStoreID(s)
}

var dotDot = regexp.MustCompile(`\.\.`)

// SanitizePath enforces §4.11's file-path validation: strips any ".."
// traversal component, collapses repeated separators to a single
// forward slash, and drops a leading slash. The result is always safe
// to join under a base directory.
func SanitizePath(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	for dotDot.MatchString(p) {
		p = dotDot.ReplaceAllString(p, "")
	}
	p = path.Clean("/" + p)
	return strings.TrimPrefix(p, "/")
}

// ValidRequestType reports whether t is one of the fixed request
// envelope types of §4.6.
func ValidRequestType(t string) bool {
	_, ok := requestTypeVocabulary[t]
	return ok
}
