package peerstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dig-network/dignode/internal/digaddr"
)

func examplePeer(id string) Peer {
	return Peer{
		PeerID:     id,
		CryptoIPv6: digaddr.Derive([]byte(id)),
		LastSeen:   time.Now(),
		Capabilities: map[Capability]struct{}{
			CapStoreSync: {},
		},
		AnnouncedStores: map[string]struct{}{
			"aa11bb22cc33dd44ee55ff6600112233": {},
		},
	}
}

func TestUpsertAndGet(t *testing.T) {
	reg := New("self")
	reg.Upsert(examplePeer("peer-a"))

	p, ok := reg.Get("peer-a")
	require.True(t, ok)
	require.True(t, p.HasCapability(CapStoreSync))
	require.True(t, p.HasStore("aa11bb22cc33dd44ee55ff6600112233"))
}

func TestUpsertRejectsSelf(t *testing.T) {
	reg := New("self")
	reg.Upsert(examplePeer("self"))
	_, ok := reg.Get("self")
	require.False(t, ok)
}

func TestUpsertRejectsNoCryptoIPv6(t *testing.T) {
	reg := New("self")
	reg.Upsert(Peer{PeerID: "no-ipv6"})
	_, ok := reg.Get("no-ipv6")
	require.False(t, ok)
}

func TestListByCapability(t *testing.T) {
	reg := New("self")
	reg.Upsert(examplePeer("peer-a"))
	reg.Upsert(Peer{
		PeerID:     "peer-b",
		CryptoIPv6: digaddr.Derive([]byte("peer-b")),
		LastSeen:   time.Now(),
	})

	matching := reg.ListByCapability(CapStoreSync)
	require.Len(t, matching, 1)
	require.Equal(t, "peer-a", matching[0].PeerID)
}

func TestExpireDropsStalePeers(t *testing.T) {
	reg := New("self")
	stale := examplePeer("stale")
	stale.LastSeen = time.Now().Add(-20 * time.Minute)
	reg.Upsert(stale)
	reg.Upsert(examplePeer("fresh"))

	removed := reg.Expire(time.Now(), 10*time.Minute)
	require.Equal(t, 1, removed)

	_, ok := reg.Get("stale")
	require.False(t, ok)
	_, ok = reg.Get("fresh")
	require.True(t, ok)
}

func TestVersionIncrementsOnUpsertAndExpire(t *testing.T) {
	reg := New("self")
	v0 := reg.Version()
	reg.Upsert(examplePeer("peer-a"))
	v1 := reg.Version()
	require.Greater(t, v1, v0)

	stale := examplePeer("stale")
	stale.LastSeen = time.Now().Add(-1 * time.Hour)
	reg.Upsert(stale)
	reg.Expire(time.Now(), time.Minute)
	v2 := reg.Version()
	require.Greater(t, v2, v1)
}
