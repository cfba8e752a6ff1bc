// Package download implements the store download orchestrator (C8): an
// ordered cascade of strategies for locating and fetching a store,
// with a parallel chunked sub-strategy for large files held by
// multiple peers.
package download

import (
	"context"
	"io"
	"os"

	"github.com/libp2p/go-libp2p/core/peer"
	"go.uber.org/zap"

	"github.com/dig-network/dignode/internal/digerr"
	"github.com/dig-network/dignode/internal/protocol"
	"github.com/dig-network/dignode/internal/store"
)

// Strategy names the cascade step that ultimately served a download,
// for metrics and logging; order here is the order §4.8 tries them in.
type Strategy string

const (
	StrategyDirect          Strategy = "direct"
	StrategyDHT             Strategy = "dht"
	StrategyGossip          Strategy = "gossip"
	StrategyPeerRelay       Strategy = "peer_relay"
	StrategyMesh            Strategy = "mesh"
	StrategyBootstrapRelay  Strategy = "bootstrap_relay"
	StrategyBootstrapDirect Strategy = "bootstrap_direct"
)

// Resolver discovers additional candidate holders for storeID; any
// field left nil is skipped in the cascade.
type Resolver func(ctx context.Context, storeID string) ([]peer.ID, error)

// BootstrapFetch opens a direct byte stream for storeID from the
// bootstrap server, used as the final cascade step.
type BootstrapFetch func(ctx context.Context, storeID string) (io.ReadCloser, int64, error)

type Resolvers struct {
	DHT             Resolver
	Gossip          Resolver
	PeerRelay       Resolver
	Mesh            Resolver
	BootstrapRelay  Resolver
	BootstrapDirect BootstrapFetch
}

const (
	parallelSizeThreshold = 1 << 20 // 1 MiB, §8
	chunkSize             = 256 * 1024
	minHoldersForParallel = 2
	maxConcurrency        = 4
)

type Cascade struct {
	log       *zap.Logger
	client    *protocol.Client
	stores    *store.Registry
	resolvers Resolvers
	manifest  *ResumeManifest
	metrics   *Metrics
}

func New(log *zap.Logger, client *protocol.Client, stores *store.Registry, resolvers Resolvers, manifest *ResumeManifest, metrics *Metrics) *Cascade {
	return &Cascade{
		log:       log,
		client:    client,
		stores:    stores,
		resolvers: resolvers,
		manifest:  manifest,
		metrics:   metrics,
	}
}

// Download tries every cascade strategy in order, returning nil as soon
// as one produces a verified, fully-assembled store on disk.
func (c *Cascade) Download(ctx context.Context, storeID string, holders []peer.ID) error {
	if c.tryStrategy(ctx, StrategyDirect, storeID, holders) {
		return nil
	}

	steps := []struct {
		name     Strategy
		resolver Resolver
	}{
		{StrategyDHT, c.resolvers.DHT},
		{StrategyGossip, c.resolvers.Gossip},
		{StrategyPeerRelay, c.resolvers.PeerRelay},
		{StrategyMesh, c.resolvers.Mesh},
		{StrategyBootstrapRelay, c.resolvers.BootstrapRelay},
	}
	for _, step := range steps {
		if step.resolver == nil {
			continue
		}
		found, err := step.resolver(ctx, storeID)
		if err != nil || len(found) == 0 {
			continue
		}
		if c.tryStrategy(ctx, step.name, storeID, found) {
			return nil
		}
	}

	if c.resolvers.BootstrapDirect != nil {
		if c.tryBootstrapDirectFor(ctx, storeID) {
			return nil
		}
	}

	c.metrics.observeFailure()
	return digerr.ErrDownloadFailed
}

func (c *Cascade) tryStrategy(ctx context.Context, strategy Strategy, storeID string, holders []peer.ID) bool {
	if len(holders) == 0 {
		return false
	}
	if len(holders) >= minHoldersForParallel {
		if hdr, body, _, ok := c.peekSize(ctx, holders, storeID); ok {
			if hdr.Size >= parallelSizeThreshold {
				body.Close()
				if err := c.downloadParallel(ctx, storeID, holders, hdr.Size); err != nil {
					c.log.Debug("download: parallel strategy failed", zap.String("strategy", string(strategy)), zap.Error(err))
					return false
				}
				c.metrics.observe(strategy)
				return true
			}
			defer body.Close()
			if err := c.writeWhole(storeID, hdr.Size, body); err != nil {
				c.log.Debug("download: whole-file write failed", zap.Error(err))
				return false
			}
			c.metrics.observe(strategy)
			return true
		}
		return false
	}

	for _, holder := range holders {
		hdr, body, err := c.client.GetStoreContent(ctx, holder, storeID)
		if err != nil {
			continue
		}
		werr := c.writeWhole(storeID, hdr.Size, body)
		body.Close()
		if werr != nil {
			continue
		}
		c.metrics.observe(strategy)
		return true
	}
	return false
}

// peekSize opens a content stream against the first responsive holder,
// used both to learn the size (to decide parallel eligibility) and, for
// the non-parallel path, as the stream actually consumed.
func (c *Cascade) peekSize(ctx context.Context, holders []peer.ID, storeID string) (protocol.GetStoreContentHeader, io.ReadCloser, peer.ID, bool) {
	for _, holder := range holders {
		hdr, body, err := c.client.GetStoreContent(ctx, holder, storeID)
		if err != nil {
			continue
		}
		return hdr, body, holder, true
	}
	return protocol.GetStoreContentHeader{}, nil, "", false
}

func (c *Cascade) tryBootstrapDirectFor(ctx context.Context, storeID string) bool {
	body, size, err := c.resolvers.BootstrapDirect(ctx, storeID)
	if err != nil {
		return false
	}
	defer body.Close()
	if err := c.writeWhole(storeID, size, body); err != nil {
		c.log.Debug("download: bootstrap direct write failed", zap.Error(err))
		return false
	}
	c.metrics.observe(StrategyBootstrapDirect)
	return true
}

// writeWhole streams body into <dig-home>/<store-id>.dig.part, then
// atomically renames into place and tells the registry to pick it up.
// storeID is an opaque content handle, not a hash commitment (the
// registry computes and records the actual content hash on Add); a
// holder announcing an unexpected byte stream is not an integrity
// failure of this download, only of that holder's later ContentHash.
func (c *Cascade) writeWhole(storeID string, size int64, body io.Reader) error {
	finalPath := c.stores.PathFor(storeID)
	tmpPath := finalPath + ".part"

	f, err := os.Create(tmpPath)
	if err != nil {
		return err
	}

	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return c.stores.Add(storeID)
}
