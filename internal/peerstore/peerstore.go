// Package peerstore implements the in-memory peer/capability registry
// (C5): a thread-safe table of known peers, their crypto-IPv6,
// capabilities, announced store set, and last-seen time.
package peerstore

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dig-network/dignode/internal/digaddr"
)

// Capability is one of the closed vocabulary of named node features.
type Capability string

const (
	CapStoreSync          Capability = "store_sync"
	CapTurnRelay          Capability = "turn_relay"
	CapBootstrapDiscovery Capability = "bootstrap_discovery"
	CapE2EEncryption      Capability = "e2e_encryption"
	CapByteRangeDownload  Capability = "byte_range_download"
	CapGossipDiscovery    Capability = "gossip_discovery"
	CapDHTStorage         Capability = "dht_storage"
	CapCircuitRelay       Capability = "circuit_relay"
	CapWebRTCNat          Capability = "webrtc_nat"
	CapMeshRouting        Capability = "mesh_routing"
)

// Peer is one entry in the registry.
type Peer struct {
	PeerID             string
	CryptoIPv6         digaddr.Ipv6
	LastSeen           time.Time
	Capabilities       map[Capability]struct{}
	AnnouncedStores    map[string]struct{}
	ProtocolVersion    string
	EncryptedAddresses []byte // opaque ciphertext, see internal/privacy
}

// HasCapability reports whether p advertises cap.
func (p Peer) HasCapability(cap Capability) bool {
	_, ok := p.Capabilities[cap]
	return ok
}

// HasStore reports whether p announced storeID.
func (p Peer) HasStore(storeID string) bool {
	_, ok := p.AnnouncedStores[storeID]
	return ok
}

// Registry is the peer table of §4.5/§5. Per-shard locking would be
// over-engineering at this scale, so a single RWMutex guards the map and
// each entry is copied in and out (no shared mutable Peer values escape
// the lock).
type Registry struct {
	selfPeerID string

	mu      sync.RWMutex
	peers   map[string]*Peer
	version uint64 // monotonic counter, incremented on every public update
}

// New constructs a registry that will never insert selfPeerID (§4.5
// invariant: "the node itself is never inserted").
func New(selfPeerID string) *Registry {
	return &Registry{
		selfPeerID: selfPeerID,
		peers:      make(map[string]*Peer),
	}
}

// Upsert inserts or refreshes a peer. A peer with no crypto-IPv6 is
// discarded per §3's invariant. Self is never inserted.
func (r *Registry) Upsert(p Peer) {
	if p.PeerID == "" || p.PeerID == r.selfPeerID {
		return
	}
	var zero digaddr.Ipv6
	if p.CryptoIPv6 == zero {
		return
	}
	if p.LastSeen.IsZero() {
		p.LastSeen = time.Now()
	}

	r.mu.Lock()
	stored := p
	r.peers[p.PeerID] = &stored
	r.mu.Unlock()

	atomic.AddUint64(&r.version, 1)
}

// Get returns a copy of the peer entry, if present.
func (r *Registry) Get(peerID string) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[peerID]
	if !ok {
		return Peer{}, false
	}
	return *p, true
}

// List returns a snapshot copy of all known peers.
func (r *Registry) List() []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Peer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, *p)
	}
	return out
}

// ListByCapability returns peers advertising cap.
func (r *Registry) ListByCapability(cap Capability) []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Peer
	for _, p := range r.peers {
		if p.HasCapability(cap) {
			out = append(out, *p)
		}
	}
	return out
}

// StoresOf returns the store-ids peerID has announced.
func (r *Registry) StoresOf(peerID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[peerID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(p.AnnouncedStores))
	for id := range p.AnnouncedStores {
		out = append(out, id)
	}
	return out
}

// Expire drops every peer whose LastSeen is older than ttl relative to
// now, implementing the default 10-minute PEER_TTL of §3.
func (r *Registry) Expire(now time.Time, ttl time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int
	for id, p := range r.peers {
		if now.Sub(p.LastSeen) > ttl {
			delete(r.peers, id)
			removed++
		}
	}
	if removed > 0 {
		atomic.AddUint64(&r.version, 1)
	}
	return removed
}

// Version returns the monotonic update counter the sync scheduler uses
// to debounce no-op diffs (§4.5).
func (r *Registry) Version() uint64 {
	return atomic.LoadUint64(&r.version)
}
