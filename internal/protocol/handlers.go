package protocol

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"time"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/dig-network/dignode/internal/digerr"
	"github.com/dig-network/dignode/internal/digurn"
	"github.com/dig-network/dignode/internal/peerstore"
	"github.com/dig-network/dignode/internal/ratelimit"
)

// handleHandshake checks the peer's announced network_id (the protocol
// version is recorded, not compared), derives the session secret via
// X25519+HKDF, and upserts the
// peer into the registry on success (§4.6.1, §4.5).
func (s *Server) handleHandshake(str network.Stream, remote peer.ID, line []byte) {
	var req HandshakeRequest
	if err := json.Unmarshal(line, &req); err != nil {
		s.writeError(str, digerr.ErrInvalidRequest)
		return
	}
	if req.NetworkID != s.self.NetworkID {
		s.writeJSON(str, HandshakeResponse{Success: false, Error: "network_id mismatch"})
		s.tp.Reject(remote, "network_id mismatch")
		return
	}

	remotePub, err := base64.StdEncoding.DecodeString(req.PublicKey)
	if err != nil || len(remotePub) != 32 {
		s.writeJSON(str, HandshakeResponse{Success: false, Error: "invalid public_key"})
		s.tp.Reject(remote, "invalid handshake public key")
		return
	}
	var remoteArr [32]byte
	copy(remoteArr[:], remotePub)

	secret, err := DeriveSessionSecret(s.self.X25519, remoteArr)
	if err != nil {
		s.writeJSON(str, HandshakeResponse{Success: false, Error: "session derivation failed"})
		s.tp.Reject(remote, "session secret derivation failed")
		return
	}
	s.sessions.Set(remote, secret)

	p := peerstore.Peer{
		PeerID:          remote.String(),
		LastSeen:        time.Now(),
		Capabilities:    map[peerstore.Capability]struct{}{},
		AnnouncedStores: map[string]struct{}{},
		ProtocolVersion: req.ProtocolVersion,
	}
	for _, descriptor := range req.Capabilities {
		p.Capabilities[peerstore.Capability(descriptor.Code)] = struct{}{}
	}
	for _, st := range req.Stores {
		p.AnnouncedStores[st] = struct{}{}
	}
	if parsed, perr := parseCryptoIPv6(req.CryptoIPv6); perr == nil {
		p.CryptoIPv6 = parsed
		s.peers.Upsert(p)
	}

	s.writeJSON(str, HandshakeResponse{
		Success:            true,
		NetworkID:          s.self.NetworkID,
		ProtocolVersion:    s.self.ProtocolVersion,
		SoftwareVersion:    s.self.SoftwareVersion,
		ServerPort:         s.self.ServerPort,
		NodeType:           s.self.NodeType,
		Capabilities:       s.self.Capabilities,
		PeerID:             s.self.PeerID,
		CryptoIPv6:         s.self.CryptoIPv6.String(),
		PublicKey:          base64.StdEncoding.EncodeToString(s.self.X25519.Public[:]),
		Timestamp:          time.Now().Unix(),
		Stores:             s.stores.List(),
		SupportedFeatures:  req.SupportedFeatures,
		CompatibleFeatures: intersect(req.SupportedFeatures, knownFeatures),
	})
}

func (s *Server) handleListStores(str network.Stream) {
	s.writeJSON(str, ListStoresResponse{
		Success: true,
		PeerID:  s.self.PeerID,
		Stores:  s.stores.List(),
	})
}

func (s *Server) handleFindStore(str network.Stream, line []byte) {
	var req FindStoreRequest
	if err := json.Unmarshal(line, &req); err != nil || !ratelimit.ValidStoreID(req.StoreID) {
		s.writeJSON(str, FindStoreResponse{Success: false, Error: digerr.ErrInvalidRequest.Error()})
		return
	}
	_, has := s.stores.Get(req.StoreID)
	s.writeJSON(str, FindStoreResponse{
		Success:    true,
		PeerID:     s.self.PeerID,
		CryptoIPv6: s.self.CryptoIPv6.String(),
		HasStore:   has,
	})
}

// handleGetStoreContent streams the whole store archive as a JSON
// header line followed by the raw file bytes (§4.6, §6 wire shape).
func (s *Server) handleGetStoreContent(str network.Stream, line []byte) {
	var req GetStoreContentRequest
	if err := json.Unmarshal(line, &req); err != nil || !ratelimit.ValidStoreID(req.StoreID) {
		s.writeJSON(str, GetStoreContentHeader{Success: false, Error: digerr.ErrInvalidRequest.Error()})
		return
	}
	entry, ok := s.stores.Get(req.StoreID)
	if !ok {
		s.writeJSON(str, GetStoreContentHeader{Success: false, Error: digerr.ErrStoreNotFound.Error()})
		return
	}

	f, err := os.Open(entry.Path)
	if err != nil {
		s.writeJSON(str, GetStoreContentHeader{Success: false, Error: digerr.ErrStoreNotFound.Error()})
		return
	}
	defer f.Close()

	s.writeJSON(str, GetStoreContentHeader{Success: true, Size: entry.Size, MimeType: MimeTypeArchive})
	_, _ = copyAll(str, f)
}

// handleGetFileRange serves an inclusive byte range [RangeStart,
// RangeEnd] of a store's archive, matching the exact-byte-count
// invariant of §8.
func (s *Server) handleGetFileRange(str network.Stream, line []byte) {
	var req GetFileRangeRequest
	if err := json.Unmarshal(line, &req); err != nil || !ratelimit.ValidStoreID(req.StoreID) {
		s.writeJSON(str, GetFileRangeHeader{Success: false, Error: digerr.ErrInvalidRequest.Error()})
		return
	}
	entry, ok := s.stores.Get(req.StoreID)
	if !ok {
		s.writeJSON(str, GetFileRangeHeader{Success: false, Error: digerr.ErrStoreNotFound.Error()})
		return
	}
	if !validRange(req.RangeStart, req.RangeEnd, entry.Size) {
		s.writeJSON(str, GetFileRangeHeader{Success: false, Error: digerr.ErrRangeOutOfBounds.Error()})
		return
	}

	f, err := os.Open(entry.Path)
	if err != nil {
		s.writeJSON(str, GetFileRangeHeader{Success: false, Error: digerr.ErrStoreNotFound.Error()})
		return
	}
	defer f.Close()

	length := req.RangeEnd - req.RangeStart + 1
	s.writeJSON(str, GetFileRangeHeader{
		Success:    true,
		Size:       length,
		TotalSize:  entry.Size,
		RangeStart: req.RangeStart,
		RangeEnd:   req.RangeEnd,
		ChunkID:    req.ChunkID,
		IsPartial:  length < entry.Size,
		MimeType:   MimeTypeArchive,
	})
	_, _ = copyRange(str, f, req.RangeStart, length)
}

func (s *Server) handleGetURN(str network.Stream, line []byte) {
	var req GetURNRequest
	if err := json.Unmarshal(line, &req); err != nil {
		s.writeJSON(str, GetStoreContentHeader{Success: false, Error: digerr.ErrInvalidRequest.Error()})
		return
	}
	urn, err := digurn.Parse(req.URN)
	if err != nil {
		s.writeJSON(str, GetStoreContentHeader{Success: false, Error: digerr.ErrInvalidURN.Error()})
		return
	}
	entry, ok := s.stores.Get(urn.StoreID)
	if !ok {
		s.writeJSON(str, GetStoreContentHeader{Success: false, Error: digerr.ErrStoreNotFound.Error()})
		return
	}
	if urn.RootHash != "" && !equalFoldHex(urn.RootHash, entry.ContentHash) {
		s.writeJSON(str, GetStoreContentHeader{Success: false, Error: digerr.ErrVersionMismatch.Error()})
		return
	}

	f, err := os.Open(entry.Path)
	if err != nil {
		s.writeJSON(str, GetStoreContentHeader{Success: false, Error: digerr.ErrStoreNotFound.Error()})
		return
	}
	defer f.Close()

	s.writeJSON(str, GetStoreContentHeader{Success: true, Size: entry.Size, MimeType: MimeTypeArchive})
	_, _ = copyAll(str, f)
}

// handlePeerExchange serves both PEER_EXCHANGE and PRIVACY_PEER_DISCOVERY;
// the latter omits RealAddresses entirely (§4.9's privacy requirement).
func (s *Server) handlePeerExchange(str network.Stream, line []byte, privacyMode bool) {
	var maxPeers int
	var includeStores, includeCaps bool
	if privacyMode {
		var req PrivacyPeerDiscoveryRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeJSON(str, PeerExchangeResponse{Success: false, Error: digerr.ErrInvalidRequest.Error()})
			return
		}
		maxPeers, includeStores, includeCaps = req.MaxPeers, false, false
	} else {
		var req PeerExchangeRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeJSON(str, PeerExchangeResponse{Success: false, Error: digerr.ErrInvalidRequest.Error()})
			return
		}
		maxPeers, includeStores, includeCaps = req.MaxPeers, req.IncludeStores, req.IncludeCapabilities
	}
	if maxPeers <= 0 || maxPeers > 100 {
		maxPeers = 100
	}

	known := s.peers.List()
	views := make([]PeerView, 0, len(known))
	for _, p := range known {
		if len(views) >= maxPeers {
			break
		}
		v := PeerView{
			PeerID:     p.PeerID,
			CryptoIPv6: p.CryptoIPv6.String(),
			LastSeen:   p.LastSeen.Unix(),
		}
		if includeStores {
			for st := range p.AnnouncedStores {
				v.Stores = append(v.Stores, st)
			}
		}
		if includeCaps {
			for c := range p.Capabilities {
				v.Capabilities = append(v.Capabilities, string(c))
			}
		}
		views = append(views, v)
	}

	s.writeJSON(str, PeerExchangeResponse{Success: true, Peers: views})
}
