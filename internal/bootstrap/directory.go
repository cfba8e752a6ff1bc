package bootstrap

import (
	"context"
	"time"

	"github.com/dig-network/dignode/internal/digaddr"
	"github.com/dig-network/dignode/internal/peerstore"
)

// SyncDirectory fetches the crypto-IPv6 directory and upserts every entry
// with a parseable crypto-IPv6 into peers, seeding the registry the way
// a freshly started node with no connected peers bootstraps its view of
// the network (§4.12 step (i), §4.5).
func (c *Client) SyncDirectory(ctx context.Context, peers *peerstore.Registry) error {
	resp, err := c.Directory(ctx, true)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, dp := range resp.Peers {
		ipv6, err := digaddr.ParseIpv6String(dp.CryptoIPv6)
		if err != nil {
			continue
		}

		caps := make(map[peerstore.Capability]struct{}, len(dp.Capabilities))
		for _, code := range dp.Capabilities {
			caps[peerstore.Capability(code)] = struct{}{}
		}
		stores := make(map[string]struct{}, len(dp.Stores))
		for _, s := range dp.Stores {
			stores[s] = struct{}{}
		}

		lastSeen := now
		if dp.LastSeen > 0 {
			lastSeen = time.Unix(dp.LastSeen, 0)
		}

		peers.Upsert(peerstore.Peer{
			PeerID:          dp.PeerID,
			CryptoIPv6:      ipv6,
			LastSeen:        lastSeen,
			Capabilities:    caps,
			AnnouncedStores: stores,
		})
	}
	return nil
}

// HoldersOf returns the peer-ids the directory lists as having announced
// storeID, for use as the bootstrap-relay resolver step of the download
// cascade (§4.8 step 6): the transport/peer registry resolves their
// addresses separately via DHT or privacy overlay.
func (c *Client) HoldersOf(ctx context.Context, storeID string) ([]string, error) {
	resp, err := c.Directory(ctx, true)
	if err != nil {
		return nil, err
	}

	var holders []string
	for _, dp := range resp.Peers {
		for _, s := range dp.Stores {
			if s == storeID {
				holders = append(holders, dp.PeerID)
				break
			}
		}
	}
	return holders, nil
}
