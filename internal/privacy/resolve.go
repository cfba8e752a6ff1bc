package privacy

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/dig-network/dignode/internal/digdht"
	"github.com/dig-network/dignode/internal/digerr"
)

// BootstrapResolve fetches a sealed address record from the bootstrap
// server's crypto-ipv6 directory, used as the final resolution step.
type BootstrapResolve func(ctx context.Context, cryptoIPv6 string) ([]byte, error)

// Resolver resolves a peer's real addresses from its sealed record via
// DHT, gossip-received records, or a bootstrap fallback, in that order
// (§4.9).
type Resolver struct {
	log       *zap.Logger
	dht       *digdht.DHT
	bootstrap BootstrapResolve

	mu         sync.RWMutex
	fromGossip map[string][]byte // crypto-ipv6 -> sealed record, fed by ObserveGossip
}

func NewResolver(log *zap.Logger, dht *digdht.DHT, bootstrap BootstrapResolve) *Resolver {
	return &Resolver{
		log:        log,
		dht:        dht,
		bootstrap:  bootstrap,
		fromGossip: make(map[string][]byte),
	}
}

// ObserveGossip records a sealed record seen on the address-exchange
// gossip topic, so Resolve can use it if the DHT lookup misses.
func (r *Resolver) ObserveGossip(cryptoIPv6 string, sealed []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fromGossip[cryptoIPv6] = sealed
}

// Resolve opens the sealed record for cryptoIPv6 using key, trying DHT,
// then any gossip-observed record, then the bootstrap fallback.
func (r *Resolver) Resolve(ctx context.Context, cryptoIPv6 string, key [32]byte) ([]string, error) {
	if r.dht != nil {
		if sealed, err := r.dht.GetPrivacyAddr(ctx, cryptoIPv6); err == nil {
			if addrs, ok := r.tryOpen(key, sealed); ok {
				return addrs, nil
			}
		}
	}

	r.mu.RLock()
	sealed, ok := r.fromGossip[cryptoIPv6]
	r.mu.RUnlock()
	if ok {
		if addrs, ok := r.tryOpen(key, sealed); ok {
			return addrs, nil
		}
	}

	if r.bootstrap != nil {
		if sealed, err := r.bootstrap(ctx, cryptoIPv6); err == nil {
			if addrs, ok := r.tryOpen(key, sealed); ok {
				return addrs, nil
			}
		}
	}

	return nil, digerr.ErrResolutionUnavailable
}

func (r *Resolver) tryOpen(key [32]byte, sealed []byte) ([]string, bool) {
	plain, err := Open(key[:], sealed)
	if err != nil {
		return nil, false
	}
	record, err := unmarshalRecord(plain)
	if err != nil {
		return nil, false
	}
	return record.RealAddresses, true
}
