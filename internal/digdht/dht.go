// Package digdht implements the DHT and gossip substrate (C4): the three
// fixed DHT key families used for discovery and address resolution, and
// the four fixed gossip topics of §4.4/§4.9.
package digdht

import (
	"context"
	"encoding/json"
	"fmt"

	dht "github.com/libp2p/go-libp2p-kad-dht"
	"go.uber.org/zap"
)

// StoreRecord is the value stored at /dig-store/<store-id>.
type StoreRecord struct {
	PeerID     string `json:"peer_id"`
	CryptoIPv6 string `json:"crypto_ipv6"`
	Timestamp  int64  `json:"timestamp"`
}

// PeerRecord is the value stored at /dig-peer/<peer-id>.
type PeerRecord struct {
	PeerID     string   `json:"peer_id"`
	Addresses  []string `json:"addresses"` // overlay form
	CryptoIPv6 string   `json:"crypto_ipv6"`
	Stores     []string `json:"stores"`
	Timestamp  int64    `json:"timestamp"`
}

// DHT wraps a kademlia DHT instance with the three key families this
// node publishes/queries. Deletion of a store publishes a best-effort
// removal (an empty-provider Put); per DESIGN.md's Open Question
// decision, this is indistinguishable from "never announced" and relies
// on natural DHT expiry for finality — no explicit tombstone.
type DHT struct {
	log *zap.Logger
	ih  *dht.IpfsDHT
}

// New wraps an already-bootstrapped *dht.IpfsDHT (constructed by
// internal/node against the transport's host, in ModeAuto).
func New(log *zap.Logger, ih *dht.IpfsDHT) *DHT {
	return &DHT{log: log, ih: ih}
}

// Bootstrap triggers the routing table refresh against the configured
// bootstrap peers; internal/node calls this after dialing them.
func (d *DHT) Bootstrap(ctx context.Context) error {
	return d.ih.Bootstrap(ctx)
}

func storeKey(storeID string) string   { return "/dig-store/" + storeID }
func privacyKey(ipv6 string) string    { return "/dig-privacy-addr/" + ipv6 }
func peerKey(peerID string) string     { return "/dig-peer/" + peerID }

// PutStoreProvider announces that self holds storeID.
func (d *DHT) PutStoreProvider(ctx context.Context, storeID string, rec StoreRecord) error {
	return d.putJSON(ctx, storeKey(storeID), rec)
}

// GetStoreProviders resolves who has announced storeID.
func (d *DHT) GetStoreProviders(ctx context.Context, storeID string) (StoreRecord, error) {
	var rec StoreRecord
	err := d.getJSON(ctx, storeKey(storeID), &rec)
	return rec, err
}

// RemoveStoreProvider publishes the best-effort removal announcement
// described above.
func (d *DHT) RemoveStoreProvider(ctx context.Context, storeID string) error {
	return d.ih.PutValue(ctx, storeKey(storeID), nil)
}

// PutPrivacyAddr publishes the ciphertext of a peer's real addresses,
// encrypted by internal/privacy before this call.
func (d *DHT) PutPrivacyAddr(ctx context.Context, cryptoIPv6 string, ciphertext []byte) error {
	return d.ih.PutValue(ctx, privacyKey(cryptoIPv6), ciphertext)
}

// GetPrivacyAddr fetches the raw ciphertext for a crypto-IPv6; the
// caller (internal/privacy) attempts decryption.
func (d *DHT) GetPrivacyAddr(ctx context.Context, cryptoIPv6 string) ([]byte, error) {
	return d.ih.GetValue(ctx, privacyKey(cryptoIPv6))
}

// PutPeerRecord publishes a generic peer directory entry.
func (d *DHT) PutPeerRecord(ctx context.Context, rec PeerRecord) error {
	return d.putJSON(ctx, peerKey(rec.PeerID), rec)
}

// GetPeerRecord resolves a generic peer directory entry.
func (d *DHT) GetPeerRecord(ctx context.Context, peerID string) (PeerRecord, error) {
	var rec PeerRecord
	err := d.getJSON(ctx, peerKey(peerID), &rec)
	return rec, err
}

func (d *DHT) putJSON(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("digdht: marshaling value for %s: %w", key, err)
	}
	return d.ih.PutValue(ctx, key, b)
}

func (d *DHT) getJSON(ctx context.Context, key string, v any) error {
	b, err := d.ih.GetValue(ctx, key)
	if err != nil {
		return fmt.Errorf("digdht: fetching %s: %w", key, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("digdht: decoding value for %s: %w", key, err)
	}
	return nil
}
