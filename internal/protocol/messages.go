package protocol

// ProtocolID is the libp2p stream protocol every dig node registers a
// handler for; each substream carries exactly one request/response per
// §4.3 ("servers enforce a single request per stream").
const ProtocolID = "/dig/1.0.0"

const MimeTypeArchive = "application/x-dig-archive"

// NodeType is one of the five roles a handshake may advertise.
type NodeType string

const (
	NodeTypeFull      NodeType = "FULL"
	NodeTypeLight     NodeType = "LIGHT"
	NodeTypeBootstrap NodeType = "BOOTSTRAP"
	NodeTypeTurn      NodeType = "TURN"
	NodeTypeRelay     NodeType = "RELAY"
)

// Envelope is the minimal shape every request carries: a type tag plus
// type-specific fields, decoded in two passes (tag first, then the full
// struct for that type).
type Envelope struct {
	Type string `json:"type"`
}

type CapabilityDescriptor struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// HandshakeRequest/HandshakeResponse share the same shape except the
// response adds CompatibleFeatures (§4.6.1).
type HandshakeRequest struct {
	Type               string                  `json:"type"`
	NetworkID          string                  `json:"network_id"`
	ProtocolVersion    string                  `json:"protocol_version"`
	SoftwareVersion    string                  `json:"software_version"`
	ServerPort         int                     `json:"server_port"`
	NodeType           NodeType                `json:"node_type"`
	Capabilities       []CapabilityDescriptor  `json:"capabilities"`
	PeerID             string                  `json:"peer_id"`
	CryptoIPv6         string                  `json:"crypto_ipv6"`
	PublicKey          string                  `json:"public_key"` // base64
	Timestamp          int64                   `json:"timestamp"`
	Stores             []string                `json:"stores"`
	SupportedFeatures  []string                `json:"supported_features"`
}

type HandshakeResponse struct {
	Success             bool                   `json:"success"`
	NetworkID            string                `json:"network_id"`
	ProtocolVersion       string               `json:"protocol_version"`
	SoftwareVersion       string               `json:"software_version"`
	ServerPort            int                  `json:"server_port"`
	NodeType              NodeType             `json:"node_type"`
	Capabilities          []CapabilityDescriptor `json:"capabilities"`
	PeerID                string               `json:"peer_id"`
	CryptoIPv6            string               `json:"crypto_ipv6"`
	PublicKey             string               `json:"public_key"`
	Timestamp             int64                `json:"timestamp"`
	Stores                []string             `json:"stores"`
	SupportedFeatures     []string             `json:"supported_features"`
	CompatibleFeatures    []string             `json:"compatible_features"`
	Error                 string               `json:"error,omitempty"`
}

type ListStoresRequest struct {
	Type string `json:"type"`
}

type ListStoresResponse struct {
	Success bool     `json:"success"`
	PeerID  string   `json:"peer_id"`
	Stores  []string `json:"stores"`
	Error   string   `json:"error,omitempty"`
}

type FindStoreRequest struct {
	Type    string `json:"type"`
	StoreID string `json:"store_id"`
}

type FindStoreResponse struct {
	Success    bool   `json:"success"`
	PeerID     string `json:"peer_id"`
	CryptoIPv6 string `json:"crypto_ipv6"`
	HasStore   bool   `json:"has_store"`
	Error      string `json:"error,omitempty"`
}

type GetStoreContentRequest struct {
	Type    string `json:"type"`
	StoreID string `json:"store_id"`
}

type GetStoreContentHeader struct {
	Success  bool   `json:"success"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
	Error    string `json:"error,omitempty"`
}

type GetFileRangeRequest struct {
	Type       string `json:"type"`
	StoreID    string `json:"store_id"`
	RangeStart int64  `json:"range_start"`
	RangeEnd   int64  `json:"range_end"`
	ChunkID    int    `json:"chunk_id"`
}

type GetFileRangeHeader struct {
	Success    bool   `json:"success"`
	Size       int64  `json:"size"`
	TotalSize  int64  `json:"total_size"`
	RangeStart int64  `json:"range_start"`
	RangeEnd   int64  `json:"range_end"`
	ChunkID    int    `json:"chunk_id"`
	IsPartial  bool   `json:"is_partial"`
	MimeType   string `json:"mime_type"`
	Error      string `json:"error,omitempty"`
}

type GetURNRequest struct {
	Type string `json:"type"`
	URN  string `json:"urn"`
}

type PeerExchangeRequest struct {
	Type                string `json:"type"`
	MaxPeers            int    `json:"max_peers"`
	IncludeStores       bool   `json:"include_stores"`
	IncludeCapabilities bool   `json:"include_capabilities"`
	PrivacyMode         bool   `json:"privacy_mode"`
}

// PeerView is one entry in a PEER_EXCHANGE/PRIVACY_PEER_DISCOVERY
// response; RealAddresses is omitted entirely (not just empty) when
// privacy mode applies.
type PeerView struct {
	PeerID       string   `json:"peer_id"`
	CryptoIPv6   string   `json:"crypto_ipv6"`
	LastSeen     int64    `json:"last_seen"`
	Stores       []string `json:"stores,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
	RealAddresses []string `json:"real_addresses,omitempty"`
}

type PeerExchangeResponse struct {
	Success bool       `json:"success"`
	Peers   []PeerView `json:"peers"`
	Error   string     `json:"error,omitempty"`
}

type PrivacyPeerDiscoveryRequest struct {
	Type     string `json:"type"`
	MaxPeers int    `json:"max_peers"`
	StoreID  string `json:"store_id,omitempty"`
}

// errorResponse is the generic {success:false, error:"..."} shape every
// handler falls back to on failure (§7 propagation policy).
type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}
