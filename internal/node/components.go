// Package node wires every component (C1-C12) into one running dig node,
// following the ordered startup/shutdown sequence of §4.12. The wiring
// itself is expressed as an fx.App (see app.go): this file does the
// actual construction, since §4.12's sequence is an explicit ordered
// procedure rather than a free-form dependency graph.
package node

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	dht "github.com/libp2p/go-libp2p-kad-dht"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/dig-network/dignode/internal/bootstrap"
	"github.com/dig-network/dignode/internal/digdht"
	"github.com/dig-network/dignode/internal/download"
	"github.com/dig-network/dignode/internal/nodecfg"
	"github.com/dig-network/dignode/internal/peerstore"
	"github.com/dig-network/dignode/internal/privacy"
	"github.com/dig-network/dignode/internal/protocol"
	"github.com/dig-network/dignode/internal/ratelimit"
	"github.com/dig-network/dignode/internal/store"
	"github.com/dig-network/dignode/internal/syncsvc"
	"github.com/dig-network/dignode/internal/transport"
)

const (
	protocolVersion = "1.0.0"
	softwareVersion = "dignode/0.1.0"
)

// knownCapabilities is the closed vocabulary of §3, paired with the
// human description carried in every HANDSHAKE (§4.6).
var knownCapabilities = []protocol.CapabilityDescriptor{
	{Code: string(peerstore.CapStoreSync), Description: "serves and syncs local stores"},
	{Code: string(peerstore.CapTurnRelay), Description: "relays opaque payloads between peers"},
	{Code: string(peerstore.CapBootstrapDiscovery), Description: "reachable via the bootstrap directory"},
	{Code: string(peerstore.CapE2EEncryption), Description: "negotiates a per-peer session secret"},
	{Code: string(peerstore.CapByteRangeDownload), Description: "serves GET_FILE_RANGE"},
	{Code: string(peerstore.CapGossipDiscovery), Description: "participates in the gossip topics"},
	{Code: string(peerstore.CapDHTStorage), Description: "publishes/queries the DHT key families"},
	{Code: string(peerstore.CapCircuitRelay), Description: "available as a libp2p circuit relay hop"},
	{Code: string(peerstore.CapWebRTCNat), Description: "reachable over WebRTC/NAT traversal"},
	{Code: string(peerstore.CapMeshRouting), Description: "answers PEER_EXCHANGE route queries"},
}

// Node is the fully-wired process: every component constructed in
// dependency order, ready for Start/Shutdown.
type Node struct {
	log    *zap.Logger
	cfg    *nodecfg.Config
	runCtx context.Context
	cancel context.CancelFunc

	identity  Identity
	self      protocol.Identity
	tp        *transport.Transport
	ih        *dht.IpfsDHT
	ddht      *digdht.DHT
	gossip    *digdht.Gossip
	stores    *store.Registry
	peers     *peerstore.Registry
	limiter   *ratelimit.Limiter
	server    *protocol.Server
	client    *protocol.Client
	bs        *bootstrap.Client
	manifest  *download.ResumeManifest
	cascade   *download.Cascade
	announcer *privacy.Announcer
	resolver  *privacy.Resolver
	scheduler *syncsvc.Scheduler
	control   *http.Server
}

// New builds every component in the order of §4.12 steps (a)-(i). The
// transport's host is already listening once New returns, but New does
// not yet serve/announce/schedule; call Start for that.
// passphrase unlocks the node's sealed identity.key (§9 key-at-rest
// supplement); it is zeroed by neither caller nor callee and should be
// discarded by the caller once New returns.
// Capability negotiation: a subsystem whose construction fails degrades
// the capability set rather than aborting the node, except for the
// identity key, the transport and the session key pair, which are
// load-bearing.
func New(ctx context.Context, log *zap.Logger, cfg *nodecfg.Config, passphrase []byte) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)

	identity, err := loadOrCreateIdentity(cfg.DigHome, passphrase)
	if err != nil {
		log.Warn("node: identity key unreadable, backing up and recreating", zap.Error(err))
		identity, err = backupAndRecreateIdentity(cfg.DigHome, passphrase)
		if err != nil {
			cancel()
			return nil, err
		}
	}

	tp, err := transport.New(runCtx, log, identity.Priv, transport.Config{
		ListenAddrs: []string{fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", cfg.Port)},
		EnableMDNS:  cfg.EnableMDNS,
		MDNSTag:     "dig-mdns-" + cfg.NetworkID,
		LowWater:    cfg.MaxParallelDial,
		HighWater:   cfg.MaxParallelDial * 4,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("node: starting transport: %w", err)
	}

	n := &Node{log: log, cfg: cfg, runCtx: runCtx, cancel: cancel, identity: identity, tp: tp}

	n.stores = store.New(log, cfg.DigHome, n.onStoreChange)
	if err := n.stores.Scan(); err != nil {
		log.Warn("node: initial store scan failed, continuing store_sync-disabled", zap.Error(err))
	}

	n.peers = peerstore.New(tp.PeerID().String())
	n.limiter = ratelimit.New(cfg.MaxReqPerMinute)

	if cfg.EnableDHT {
		n.ih, n.ddht, err = newDHT(runCtx, log, tp.Host())
		if err != nil {
			log.Warn("node: dht unavailable, continuing dht_storage-disabled", zap.Error(err))
		}
		n.gossip, err = digdht.NewGossip(runCtx, log, tp.Host())
		if err != nil {
			log.Warn("node: gossip unavailable, continuing gossip_discovery-disabled", zap.Error(err))
		}
	}

	caps := n.negotiatedCapabilities()
	self := protocol.Identity{
		NetworkID:       cfg.NetworkID,
		ProtocolVersion: protocolVersion,
		SoftwareVersion: softwareVersion,
		ServerPort:      cfg.Port,
		NodeType:        protocol.NodeTypeFull,
		Capabilities:    caps,
		PeerID:          tp.PeerID().String(),
		CryptoIPv6:      identity.CryptoIPv6,
	}
	x25519, err := protocol.GenerateX25519KeyPair()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("node: generating session key pair: %w", err)
	}
	self.X25519 = x25519
	n.self = self

	n.server = protocol.NewServer(log, self, tp, n.stores, n.peers, n.limiter)
	n.client = protocol.NewClient(tp.Host())

	n.bs = bootstrap.New(log, cfg.BootstrapServers, tp.PeerID().String(), n.stores)

	manifestPath := filepath.Join(cfg.DigHome, "resume.sqlite")
	n.manifest, err = download.OpenResumeManifest(manifestPath)
	if err != nil {
		log.Warn("node: resume manifest unavailable, downloads will not survive restart", zap.Error(err))
	}
	metrics := download.NewMetrics(prometheus.DefaultRegisterer)
	n.cascade = download.New(log, n.client, n.stores, n.downloadResolvers(), n.manifest, metrics)

	if n.ddht != nil && n.gossip != nil {
		n.announcer = privacy.NewAnnouncer(log, n.ddht, n.gossip, sessionKeyFor(x25519), tp.PeerID().String(), identity.CryptoIPv6.String(), 30*time.Second, 30*time.Second, nil)
		n.resolver = privacy.NewResolver(log, n.ddht, n.bs.ResolvePrivacyAddr)
	}

	n.scheduler = syncsvc.New(log, cfg.SyncInterval, n.client, n.peers, n.stores, n.cascade, n.bs)

	return n, nil
}

func newDHT(ctx context.Context, log *zap.Logger, h host.Host) (*dht.IpfsDHT, *digdht.DHT, error) {
	ih, err := dht.New(ctx, h, dht.Mode(dht.ModeAuto))
	if err != nil {
		return nil, nil, fmt.Errorf("node: constructing dht: %w", err)
	}
	return ih, digdht.New(log, ih), nil
}

// negotiatedCapabilities reports the subset of knownCapabilities this
// node can actually serve given what construction has succeeded so far
// (§4.12's capability negotiation: optional subsystems degrade, never
// abort).
func (n *Node) negotiatedCapabilities() []protocol.CapabilityDescriptor {
	enabled := map[string]bool{
		string(peerstore.CapE2EEncryption):      true,
		string(peerstore.CapByteRangeDownload):  true,
		string(peerstore.CapMeshRouting):        true,
		string(peerstore.CapTurnRelay):          true,
		string(peerstore.CapCircuitRelay):       true,
		string(peerstore.CapWebRTCNat):           true,
		string(peerstore.CapStoreSync):           true, // scan failures degrade writes, not the handler itself; logged in New
		string(peerstore.CapBootstrapDiscovery): len(n.cfg.BootstrapServers) > 0,
		string(peerstore.CapDHTStorage):         n.ddht != nil,
		string(peerstore.CapGossipDiscovery):    n.gossip != nil,
	}

	out := make([]protocol.CapabilityDescriptor, 0, len(knownCapabilities))
	for _, c := range knownCapabilities {
		if enabled[c.Code] {
			out = append(out, c)
		}
	}
	return out
}

func (n *Node) downloadResolvers() download.Resolvers {
	r := download.Resolvers{
		BootstrapDirect: n.bs.FetchDirect,
		BootstrapRelay:  n.bs.ResolveHolders,
	}
	if n.ddht != nil {
		r.DHT = n.dhtHolderResolver
	}
	return r
}

func (n *Node) dhtHolderResolver(ctx context.Context, storeID string) ([]peer.ID, error) {
	rec, err := n.ddht.GetStoreProviders(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if rec.PeerID == "" || rec.PeerID == n.tp.PeerID().String() {
		return nil, nil
	}
	pid, err := peer.Decode(rec.PeerID)
	if err != nil {
		return nil, err
	}
	return []peer.ID{pid}, nil
}

// onStoreChange is the store registry's writer-side hook (§5): a
// freshly committed store is announced to the DHT and gossip before any
// remote peer can observe it, matching the ordering guarantee that the
// publisher's own handlers see it first (they read straight from the
// registry, with no round trip).
func (n *Node) onStoreChange(storeID string, removed bool) {
	if n.ddht == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if removed {
		if err := n.ddht.RemoveStoreProvider(ctx, storeID); err != nil {
			n.log.Debug("node: announcing store removal failed", zap.Error(err))
		}
		return
	}

	rec := digdht.StoreRecord{PeerID: n.tp.PeerID().String(), CryptoIPv6: n.identity.CryptoIPv6.String(), Timestamp: time.Now().Unix()}
	if err := n.ddht.PutStoreProvider(ctx, storeID, rec); err != nil {
		n.log.Debug("node: announcing store failed", zap.String("store_id", storeID), zap.Error(err))
	}
	if n.gossip != nil {
		msg := storeAnnouncement{StoreID: storeID, StoreRecord: rec}
		if err := n.gossip.Publish(ctx, digdht.TopicStoreAnnouncements, msg); err != nil {
			n.log.Debug("node: gossiping store announcement failed", zap.Error(err))
		}
	}
}

type storeAnnouncement struct {
	StoreID string `json:"store_id"`
	digdht.StoreRecord
}

// sessionKeyFor derives a stable "encrypted for self" key from the
// node's own ephemeral X25519 key pair, by exchanging it with itself:
// this is the node's own per-session secret, usable only by the node
// itself to read back its own privacy-overlay announcements (§4.9
// "Store-owner semantics").
func sessionKeyFor(x25519 protocol.X25519KeyPair) [32]byte {
	secret, err := protocol.DeriveSessionSecret(x25519, x25519.Public)
	if err != nil {
		return [32]byte{}
	}
	return [32]byte(secret)
}
