// Package syncsvc implements the periodic store-sync scheduler (C7): it
// polls known peers' store lists, diffs against the local registry, and
// hands missing stores to a downloader, falling back to a bootstrap
// pull when no peer is reachable.
package syncsvc

import (
	"context"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/dig-network/dignode/internal/peerstore"
	"github.com/dig-network/dignode/internal/protocol"
	"github.com/dig-network/dignode/internal/store"
)

// Downloader fetches storeID from one of the given candidate holders,
// trying its own cascade of strategies; implemented by internal/download.
type Downloader interface {
	Download(ctx context.Context, storeID string, holders []peer.ID) error
}

// BootstrapPuller is consulted when no known peer advertises store_sync
// (with a nil list), or with the store-ids whose peer download failed;
// implemented by internal/bootstrap.
type BootstrapPuller interface {
	PullMissing(ctx context.Context, storeIDs []string) error
}

type Scheduler struct {
	log        *zap.Logger
	interval   time.Duration
	client     *protocol.Client
	peers      *peerstore.Registry
	stores     *store.Registry
	downloader Downloader
	bootstrap  BootstrapPuller

	sf singleflight.Group
}

func New(log *zap.Logger, interval time.Duration, client *protocol.Client, peers *peerstore.Registry, stores *store.Registry, downloader Downloader, bootstrap BootstrapPuller) *Scheduler {
	return &Scheduler{
		log:        log,
		interval:   interval,
		client:     client,
		peers:      peers,
		stores:     stores,
		downloader: downloader,
		bootstrap:  bootstrap,
	}
}

// Run blocks until ctx is cancelled, running one sync pass per tick. A
// slow pass that outruns the ticker is never run twice concurrently: the
// singleflight group collapses any tick that lands while a pass is
// still in flight into the in-flight call.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.TriggerOnce(ctx)
		}
	}
}

// TriggerOnce runs a single sync pass immediately, deduplicated against
// any already-running pass.
func (s *Scheduler) TriggerOnce(ctx context.Context) {
	_, _, _ = s.sf.Do("sync", func() (any, error) {
		s.syncOnce(ctx)
		return nil, nil
	})
}

func (s *Scheduler) syncOnce(ctx context.Context) {
	known := s.peers.List()
	holdersByStore := map[string][]peer.ID{}
	var syncPeers int

	for _, p := range known {
		if !p.HasCapability(peerstore.CapStoreSync) {
			continue
		}
		syncPeers++
		pid, err := peer.Decode(p.PeerID)
		if err != nil {
			continue
		}
		resp, err := s.client.ListStores(ctx, pid)
		if err != nil {
			s.log.Debug("syncsvc: list stores failed", zap.String("peer", p.PeerID), zap.Error(err))
			continue
		}
		for _, storeID := range resp.Stores {
			holdersByStore[storeID] = append(holdersByStore[storeID], pid)
		}
	}

	if syncPeers == 0 && s.bootstrap != nil {
		if err := s.bootstrap.PullMissing(ctx, nil); err != nil {
			s.log.Debug("syncsvc: bootstrap pull with no connected peers failed", zap.Error(err))
		}
		return
	}

	local := map[string]bool{}
	for _, id := range s.stores.List() {
		local[id] = true
	}

	var missingNoPeer []string
	if s.downloader != nil {
		for _, storeID := range missingStores(holdersByStore, local) {
			if err := s.downloader.Download(ctx, storeID, holdersByStore[storeID]); err != nil {
				s.log.Warn("syncsvc: download failed", zap.String("store_id", storeID), zap.Error(err))
				missingNoPeer = append(missingNoPeer, storeID)
			}
		}
	}

	if len(missingNoPeer) > 0 && s.bootstrap != nil {
		if err := s.bootstrap.PullMissing(ctx, missingNoPeer); err != nil {
			s.log.Debug("syncsvc: bootstrap pull failed", zap.Error(err))
		}
	}
}
