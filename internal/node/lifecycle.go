package node

import (
	"context"
	"encoding/json"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"go.uber.org/zap"

	"github.com/dig-network/dignode/internal/digaddr"
	"github.com/dig-network/dignode/internal/digdht"
	"github.com/dig-network/dignode/internal/peerstore"
	"github.com/dig-network/dignode/internal/privacy"
)

// Start binds the protocol handler, publishes the node's initial state,
// and launches every background loop, completing §4.12 steps (e)-(j).
// It returns once everything is launched; the loops themselves run
// until the context passed to New is cancelled (via Shutdown).
func (n *Node) Start(ctx context.Context) error {
	n.server.Register()

	for _, storeID := range n.stores.List() {
		n.onStoreChange(storeID, false)
	}

	go func() {
		if err := n.stores.Watch(n.runCtx); err != nil && n.runCtx.Err() == nil {
			n.log.Warn("node: store directory watch stopped", zap.Error(err))
		}
	}()

	if n.gossip != nil {
		n.listenTopic(digdht.TopicAddressExchange, n.handleAddressExchange)
		n.listenTopic(digdht.TopicStoreAnnouncements, n.handleStoreAnnouncement)
		n.listenTopic(digdht.TopicCapabilityAnnouncements, n.handleCapabilityAnnouncement)
		n.listenTopic(digdht.TopicPeerDiscovery, n.handlePeerDiscovery)
		n.publishCapabilities(ctx)
	}

	if n.announcer != nil {
		go n.announcer.Run(n.runCtx)
	}

	go n.scheduler.Run(n.runCtx)

	if len(n.cfg.BootstrapServers) > 0 {
		n.registerWithBootstrap(ctx)
	}

	n.startControlServer()

	n.log.Info("node: started",
		zap.String("peer_id", n.tp.PeerID().String()),
		zap.String("crypto_ipv6", n.identity.CryptoIPv6.String()),
		zap.Int("capabilities", len(n.self.Capabilities)),
	)
	return nil
}

// Shutdown cancels every background loop, stops the control server,
// closes the resume manifest, and closes the transport last, per §4.12's
// shutdown ordering. It does not wait for in-flight downloads to finish;
// their .part files are left on disk.
func (n *Node) Shutdown(ctx context.Context) error {
	n.cancel()
	n.stopControlServer(ctx)

	if n.manifest != nil {
		if err := n.manifest.Close(); err != nil {
			n.log.Warn("node: closing resume manifest", zap.Error(err))
		}
	}

	return n.tp.Close()
}

func (n *Node) registerWithBootstrap(ctx context.Context) {
	if _, err := n.bs.RegisterSelf(ctx, n.self, n.stores.List(), time.Now().Unix()); err != nil {
		n.log.Warn("node: bootstrap registration failed, continuing peer-discovery-only", zap.Error(err))
		return
	}
	if err := n.bs.SyncDirectory(ctx, n.peers); err != nil {
		n.log.Debug("node: bootstrap directory sync failed", zap.Error(err))
	}
}

func (n *Node) publishCapabilities(ctx context.Context) {
	msg := capabilityAnnouncement{
		PeerID:     n.tp.PeerID().String(),
		CryptoIPv6: n.identity.CryptoIPv6.String(),
	}
	for _, c := range n.self.Capabilities {
		msg.Capabilities = append(msg.Capabilities, c.Code)
	}
	if err := n.gossip.Publish(ctx, digdht.TopicCapabilityAnnouncements, msg); err != nil {
		n.log.Debug("node: publishing capability announcement failed", zap.Error(err))
	}
}

func (n *Node) listenTopic(topic string, handle digdht.Handler) {
	go func() {
		if err := n.gossip.Listen(n.runCtx, topic, handle); err != nil && n.runCtx.Err() == nil {
			n.log.Debug("node: gossip listener stopped", zap.String("topic", topic), zap.Error(err))
		}
	}()
}

func (n *Node) handleAddressExchange(from peer.ID, data []byte) {
	var msg privacy.AddressExchangeMessage
	if json.Unmarshal(data, &msg) != nil {
		return
	}
	if n.resolver != nil {
		n.resolver.ObserveGossip(msg.CryptoIPv6, msg.Sealed)
	}
}

func (n *Node) handleStoreAnnouncement(from peer.ID, data []byte) {
	var msg storeAnnouncement
	if json.Unmarshal(data, &msg) != nil {
		return
	}
	p := n.peerFor(msg.PeerID, msg.CryptoIPv6)
	if p.AnnouncedStores == nil {
		p.AnnouncedStores = make(map[string]struct{})
	}
	p.AnnouncedStores[msg.StoreID] = struct{}{}
	n.peers.Upsert(p)
}

func (n *Node) handleCapabilityAnnouncement(from peer.ID, data []byte) {
	var msg capabilityAnnouncement
	if json.Unmarshal(data, &msg) != nil {
		return
	}
	p := n.peerFor(msg.PeerID, msg.CryptoIPv6)
	p.Capabilities = make(map[peerstore.Capability]struct{}, len(msg.Capabilities))
	for _, c := range msg.Capabilities {
		p.Capabilities[peerstore.Capability(c)] = struct{}{}
	}
	n.peers.Upsert(p)
}

func (n *Node) handlePeerDiscovery(from peer.ID, data []byte) {
	var msg privacy.DiscoveryAnnouncement
	if json.Unmarshal(data, &msg) != nil {
		return
	}
	n.peers.Upsert(n.peerFor(msg.PeerID, msg.CryptoIPv6))
}

// peerFor returns the existing registry entry for peerID, merging in
// cryptoIPv6 only when the entry is new, so gossip handlers that each
// carry just a slice of a peer's state never clobber fields they don't
// know about.
func (n *Node) peerFor(peerID, cryptoIPv6 string) peerstore.Peer {
	if existing, ok := n.peers.Get(peerID); ok {
		return existing
	}
	parsed, err := digaddr.ParseIpv6String(cryptoIPv6)
	if err != nil {
		return peerstore.Peer{PeerID: peerID}
	}
	return peerstore.Peer{PeerID: peerID, CryptoIPv6: parsed}
}

type capabilityAnnouncement struct {
	PeerID       string   `json:"peer_id"`
	CryptoIPv6   string   `json:"crypto_ipv6"`
	Capabilities []string `json:"capabilities"`
}
