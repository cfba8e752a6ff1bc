// Package protocol implements the request/response substream protocol
// (C6): eight message types dispatched over a single libp2p stream
// protocol, each stream carrying exactly one request and one response.
package protocol

import (
	"bufio"
	"encoding/json"
	"time"

	"github.com/libp2p/go-libp2p/core/network"
	"go.uber.org/zap"

	"github.com/dig-network/dignode/internal/digaddr"
	"github.com/dig-network/dignode/internal/digerr"
	"github.com/dig-network/dignode/internal/peerstore"
	"github.com/dig-network/dignode/internal/ratelimit"
	"github.com/dig-network/dignode/internal/store"
	"github.com/dig-network/dignode/internal/transport"
)

// Identity is this node's own advertised handshake fields, supplied by
// internal/node at construction time.
type Identity struct {
	NetworkID       string
	ProtocolVersion string
	SoftwareVersion string
	ServerPort      int
	NodeType        NodeType
	Capabilities    []CapabilityDescriptor
	PeerID          string
	CryptoIPv6      digaddr.Ipv6
	X25519          X25519KeyPair
}

// Server binds ProtocolID on a transport.Transport and dispatches each
// inbound stream to the matching handler, enforcing rate limiting and
// input validation ahead of every handler per §4.6/§4.11.
type Server struct {
	log      *zap.Logger
	self     Identity
	tp       *transport.Transport
	stores   *store.Registry
	peers    *peerstore.Registry
	limiter  *ratelimit.Limiter
	sessions *Sessions
}

func NewServer(log *zap.Logger, self Identity, tp *transport.Transport, stores *store.Registry, peers *peerstore.Registry, limiter *ratelimit.Limiter) *Server {
	return &Server{
		log:      log,
		self:     self,
		tp:       tp,
		stores:   stores,
		peers:    peers,
		limiter:  limiter,
		sessions: NewSessions(),
	}
}

// Register binds the stream handler on the underlying host. Call once
// during node startup, after the transport is listening.
func (s *Server) Register() {
	s.tp.Host().SetStreamHandler(ProtocolID, s.handleStream)
}

// readTimeout bounds how long a single request line may take to arrive;
// a slow/stalled peer should not hold a server goroutine forever.
const readTimeout = 30 * time.Second

func (s *Server) handleStream(str network.Stream) {
	defer str.Close()

	remote := str.Conn().RemotePeer()
	if !s.limiter.Allow(remote.String()) {
		s.writeError(str, digerr.ErrRateLimited)
		return
	}

	_ = str.SetDeadline(time.Now().Add(readTimeout))

	reader := bufio.NewReader(str)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		s.log.Debug("protocol: reading request line", zap.Error(err), zap.String("peer", remote.String()))
		return
	}

	var env Envelope
	if err := json.Unmarshal(line, &env); err != nil {
		s.writeError(str, digerr.ErrInvalidRequest)
		return
	}
	if !ratelimit.ValidRequestType(env.Type) {
		s.writeError(str, digerr.ErrUnsupportedRequest)
		return
	}

	switch env.Type {
	case "HANDSHAKE":
		s.handleHandshake(str, remote, line)
	case "LIST_STORES":
		s.handleListStores(str)
	case "FIND_STORE":
		s.handleFindStore(str, line)
	case "GET_STORE_CONTENT":
		s.handleGetStoreContent(str, line)
	case "GET_FILE_RANGE":
		s.handleGetFileRange(str, line)
	case "GET_URN":
		s.handleGetURN(str, line)
	case "PEER_EXCHANGE":
		s.handlePeerExchange(str, line, false)
	case "PRIVACY_PEER_DISCOVERY":
		s.handlePeerExchange(str, line, true)
	default:
		s.writeError(str, digerr.ErrUnsupportedRequest)
	}
}

func (s *Server) writeJSON(str network.Stream, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.log.Error("protocol: marshaling response", zap.Error(err))
		return
	}
	b = append(b, '\n')
	if _, err := str.Write(b); err != nil {
		s.log.Debug("protocol: writing response", zap.Error(err))
	}
}

func (s *Server) writeError(str network.Stream, sentinel error) {
	s.writeJSON(str, errorResponse{Success: false, Error: sentinel.Error()})
}
