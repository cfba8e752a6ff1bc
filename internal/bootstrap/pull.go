package bootstrap

import (
	"context"
	"io"

	"github.com/libp2p/go-libp2p/core/peer"
	"go.uber.org/zap"
)

// PullMissing implements internal/syncsvc's BootstrapPuller: the fallback
// invoked when the sync scheduler has no store_sync-capable peers
// connected, or when every peer-path download for storeIDs still failed.
// When storeIDs is nil, it reconciles the full directory against the
// local registry the way a freshly started, peerless node seeds itself
// (§4.12 step (g), §4.10).
func (c *Client) PullMissing(ctx context.Context, storeIDs []string) error {
	targets := storeIDs
	if targets == nil {
		resp, err := c.Directory(ctx, true)
		if err != nil {
			return err
		}
		local := map[string]bool{}
		for _, id := range c.stores.List() {
			local[id] = true
		}
		seen := map[string]bool{}
		for _, dp := range resp.Peers {
			for _, s := range dp.Stores {
				if !local[s] && !seen[s] {
					seen[s] = true
					targets = append(targets, s)
				}
			}
		}
	}

	var lastErr error
	for _, storeID := range targets {
		if err := c.pullOne(ctx, storeID); err != nil {
			c.log.Debug("bootstrap: pull failed", zap.String("store_id", storeID), zap.Error(err))
			lastErr = err
		}
	}
	return lastErr
}

func (c *Client) pullOne(ctx context.Context, storeID string) error {
	body, size, err := c.FetchDirect(ctx, storeID)
	if err != nil {
		return err
	}
	defer body.Close()
	return writeVerified(c.stores, storeID, size, body)
}

// FetchDirect implements internal/download's BootstrapFetch: the final
// cascade step (§4.8 step 7), fetching a store's bytes proxied directly
// by the bootstrap service via POST /bootstrap-turn-relay.
func (c *Client) FetchDirect(ctx context.Context, storeID string) (io.ReadCloser, int64, error) {
	return c.TurnRelay(ctx, TurnRequest{StoreID: storeID, ToPeerID: c.selfPeerID})
}

// ResolveHolders implements a download-cascade Resolver for the
// bootstrap-relay step (§4.8 step 6): it asks the directory which peers
// announced storeID, letting the cascade attempt a direct P2P fetch from
// each via the transport's normal address resolution.
func (c *Client) ResolveHolders(ctx context.Context, storeID string) ([]peer.ID, error) {
	ids, err := c.HoldersOf(ctx, storeID)
	if err != nil {
		return nil, err
	}
	out := make([]peer.ID, 0, len(ids))
	for _, s := range ids {
		pid, err := peer.Decode(s)
		if err != nil {
			continue
		}
		out = append(out, pid)
	}
	return out, nil
}
