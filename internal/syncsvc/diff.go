package syncsvc

import "github.com/libp2p/go-libp2p/core/peer"

// missingStores returns the keys of holdersByStore not present in local,
// factored out of syncOnce so the diff rule itself is independently
// testable without a live libp2p host.
func missingStores(holdersByStore map[string][]peer.ID, local map[string]bool) []string {
	var out []string
	for storeID := range holdersByStore {
		if !local[storeID] {
			out = append(out, storeID)
		}
	}
	return out
}
