// Package transport implements the dig node's encrypted point-to-point
// transport (C3): host construction, connection acceptance/dialing, and
// the Dialing->Authenticating->Encrypted->Multiplexed->Closed/Rejected
// state machine. Plaintext protocols are refused because every listener
// this package configures carries libp2p's security transports only;
// there is no insecure fallback to disable.
package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	libp2p "github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	mdns "github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	connmgr "github.com/libp2p/go-libp2p/p2p/net/connmgr"
	"github.com/libp2p/go-libp2p/p2p/protocol/ping"
	"go.uber.org/zap"

	"github.com/dig-network/dignode/internal/digaddr"
)

// Transport owns the libp2p host and every live connection's state,
// mirroring the arena pattern of §9: connections are owned
// here, peers are owned by internal/peerstore, and the two exchange only
// peer.ID values, never pointers into each other.
type Transport struct {
	log  *zap.Logger
	host host.Host

	mu     sync.RWMutex
	states map[peer.ID]*connState

	latMu sync.Mutex
	rtts  map[peer.ID]time.Duration

	pingSvc *ping.PingService
}

type connState struct {
	state    ConnState
	verified bool
}

// Config controls which optional transports/discovery mechanisms New
// turns on, mirroring the try/fallback capability negotiation of §4.12.
type Config struct {
	ListenAddrs []string
	EnableMDNS  bool
	MDNSTag     string
	LowWater    int // connmgr low watermark
	HighWater   int // connmgr high watermark
}

// New constructs a Transport, bringing up a libp2p host with the
// teacher's default security/muxer/transport stack (TCP, QUIC, WebRTC)
// plus an explicit connection manager enforcing cfg's watermarks.
func New(ctx context.Context, log *zap.Logger, priv crypto.PrivKey, cfg Config) (*Transport, error) {
	cm, err := connmgr.NewConnManager(cfg.LowWater, cfg.HighWater, connmgr.WithGracePeriod(time.Minute))
	if err != nil {
		return nil, fmt.Errorf("transport: connection manager: %w", err)
	}

	h, err := libp2p.New(
		libp2p.Identity(priv),
		libp2p.DefaultSecurity,
		libp2p.DefaultMuxers,
		libp2p.DefaultTransports,
		libp2p.ListenAddrStrings(cfg.ListenAddrs...),
		libp2p.ConnectionManager(cm),
	)
	if err != nil {
		return nil, fmt.Errorf("transport: constructing host: %w", err)
	}

	t := &Transport{
		log:    log,
		host:   h,
		states: make(map[peer.ID]*connState),
		rtts:   make(map[peer.ID]time.Duration),
	}
	h.Network().Notify(t.notifee())

	if cfg.EnableMDNS {
		svc := mdns.NewMdnsService(h, cfg.MDNSTag, mdnsNotifee{h: h, log: log})
		if err := svc.Start(); err != nil {
			log.Warn("mdns discovery unavailable, continuing without it", zap.Error(err))
		}
	}

	t.pingSvc = ping.NewPingService(h)
	go t.pingLoop(ctx)

	return t, nil
}

// Host returns the underlying libp2p host for components (digdht,
// protocol) that need to register stream handlers or construct
// DHT/pubsub instances over it.
func (t *Transport) Host() host.Host { return t.host }

// PeerID is this node's own transport-layer identity.
func (t *Transport) PeerID() peer.ID { return t.host.ID() }

// Close tears down the host; called last during shutdown per §4.12.
func (t *Transport) Close() error {
	return t.host.Close()
}

type mdnsNotifee struct {
	h   host.Host
	log *zap.Logger
}

func (m mdnsNotifee) HandlePeerFound(info peer.AddrInfo) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.h.Connect(ctx, info); err != nil {
		m.log.Debug("mdns peer connect failed", zap.String("peer", info.ID.String()), zap.Error(err))
	}
}

// notifee tracks the Multiplexed and Closed edges that libp2p's
// Connected/Disconnected callbacks expose. Dialing, Authenticating and
// Encrypted are not independently observable from those callbacks (the
// security handshake happens before libp2p ever calls Connected), so a
// newly connected peer enters the table directly as Multiplexed;
// Rejected is recorded only by Reject.
func (t *Transport) notifee() network.Notifiee {
	return &network.NotifyBundle{
		ConnectedF: func(_ network.Network, c network.Conn) {
			t.setState(c.RemotePeer(), StateMultiplexed, false)
		},
		DisconnectedF: func(_ network.Network, c network.Conn) {
			t.setState(c.RemotePeer(), StateClosed, false)
		},
	}
}

func (t *Transport) setState(id peer.ID, s ConnState, verified bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.states[id]
	if !ok {
		cur = &connState{}
		t.states[id] = cur
	}
	if ok && !canTransition(cur.state, s) && s != StateClosed {
		t.log.Warn("illegal transport state transition",
			zap.String("peer", id.String()), zap.Stringer("from", cur.state), zap.Stringer("to", s))
		return
	}
	cur.state = s
	if verified {
		cur.verified = true
	}
}

// State reports the current connection state for a peer.
func (t *Transport) State(id peer.ID) (ConnState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cur, ok := t.states[id]
	if !ok {
		return StateClosed, false
	}
	return cur.state, cur.verified
}

// VerifyRemoteIdentity checks that the remote's long-term public key
// hashes to the crypto-IPv6 it advertised in the handshake (§3, §4.3). A
// mismatch marks the connection "unverified" but does not close it; the
// caller (internal/protocol's HANDSHAKE handler) decides whether strict
// verification was required for this dial.
func (t *Transport) VerifyRemoteIdentity(id peer.ID, remotePublicKey []byte, advertised digaddr.Ipv6) bool {
	ok := digaddr.Derive(remotePublicKey) == advertised
	t.mu.Lock()
	if cur, exists := t.states[id]; exists {
		cur.verified = ok
	}
	t.mu.Unlock()
	if !ok {
		t.log.Warn("remote identity verification failed", zap.String("peer", id.String()))
	}
	return ok
}

// Reject transitions a connection straight to Rejected and closes it,
// used when the authenticated/forward-secret session fails to
// establish, or a dial insists on plaintext (§4.3 mandatory encryption
// policy).
func (t *Transport) Reject(id peer.ID, reason string) {
	t.setState(id, StateRejected, false)
	t.log.Info("connection rejected", zap.String("peer", id.String()), zap.String("reason", reason))
	for _, c := range t.host.Network().ConnsToPeer(id) {
		_ = c.Close()
	}
}

func (t *Transport) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.pingOnce(ctx)
		}
	}
}

func (t *Transport) pingOnce(ctx context.Context) {
	for _, pid := range t.host.Network().Peers() {
		ch := t.pingSvc.Ping(ctx, pid)
		select {
		case res := <-ch:
			if res.Error == nil {
				t.latMu.Lock()
				t.rtts[pid] = res.RTT
				t.latMu.Unlock()
			}
		case <-time.After(2 * time.Second):
		case <-ctx.Done():
			return
		}
	}
}

// PeersByRTT returns connected peers sorted ascending by last-observed
// ping RTT; a peer with no successful ping yet counts as zero. The
// download orchestrator does not consult it.
func (t *Transport) PeersByRTT() []peer.ID {
	t.latMu.Lock()
	defer t.latMu.Unlock()

	peers := t.host.Network().Peers()
	rtts := make(map[peer.ID]time.Duration, len(peers))
	for _, p := range peers {
		rtts[p] = t.rtts[p]
	}

	out := make([]peer.ID, len(peers))
	copy(out, peers)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && rtts[out[j]] < rtts[out[j-1]]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
