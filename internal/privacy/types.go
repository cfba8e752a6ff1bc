package privacy

// AddressRecord is the plaintext sealed for self and published at
// /dig-privacy-addr/<crypto-ipv6>; only the owning node can derive the
// key needed to open it, per §4.9's "encrypted for self" design.
type AddressRecord struct {
	RealAddresses []string `json:"real_addresses"`
	Timestamp     int64    `json:"timestamp"`
}

// DiscoveryAnnouncement is broadcast on the peer-discovery gossip topic.
// DummyStoreIDs holds only random store-id-shaped values; the
// announcement carries none of the peer's real store-ids, so passive
// observers cannot read which stores a peer holds from it.
type DiscoveryAnnouncement struct {
	PeerID        string   `json:"peer_id"`
	CryptoIPv6    string   `json:"crypto_ipv6"`
	DummyStoreIDs []string `json:"dummy_store_ids"`
	Timestamp     int64    `json:"timestamp"`
}

// AddressExchangeMessage carries the same sealed record put at
// /dig-privacy-addr/<crypto-ipv6> onto the address-exchange gossip
// topic, so a resolver watching gossip can resolve a peer's address
// without waiting on a DHT round trip (§4.9 step 2).
type AddressExchangeMessage struct {
	CryptoIPv6 string `json:"crypto_ipv6"`
	Sealed     []byte `json:"sealed"`
}
