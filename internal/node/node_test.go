package node

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dig-network/dignode/internal/nodecfg"
	"github.com/dig-network/dignode/internal/peerstore"
)

func mustJSON(t *testing.T, v any) []byte {
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func testConfig(t *testing.T) *nodecfg.Config {
	cfg := nodecfg.Default()
	cfg.DigHome = t.TempDir()
	cfg.Port = 0
	cfg.EnableMDNS = false
	cfg.EnableDHT = false
	cfg.BootstrapServers = nil
	cfg.SyncInterval = time.Hour
	cfg.NetworkID = "testnet"
	return cfg
}

func TestNewConstructsWithDHTDisabled(t *testing.T) {
	n, err := New(t.Context(), zap.NewNop(), testConfig(t), []byte("test-pass"))
	require.NoError(t, err)
	defer n.Shutdown(t.Context())

	require.Nil(t, n.ddht)
	require.Nil(t, n.gossip)
	require.NotEmpty(t, n.tp.PeerID().String())
	require.NotEqual(t, "", n.identity.CryptoIPv6.String())
}

func TestNegotiatedCapabilitiesExcludeUnavailableSubsystems(t *testing.T) {
	n, err := New(t.Context(), zap.NewNop(), testConfig(t), []byte("test-pass"))
	require.NoError(t, err)
	defer n.Shutdown(t.Context())

	for _, c := range n.self.Capabilities {
		require.NotEqual(t, string(peerstore.CapDHTStorage), c.Code)
		require.NotEqual(t, string(peerstore.CapGossipDiscovery), c.Code)
		require.NotEqual(t, string(peerstore.CapBootstrapDiscovery), c.Code)
	}

	var hasE2E bool
	for _, c := range n.self.Capabilities {
		if c.Code == string(peerstore.CapE2EEncryption) {
			hasE2E = true
		}
	}
	require.True(t, hasE2E, "e2e_encryption should always be negotiated")
}

func TestIdentityPersistsAcrossRestart(t *testing.T) {
	cfg := testConfig(t)

	n1, err := New(t.Context(), zap.NewNop(), cfg, []byte("test-pass"))
	require.NoError(t, err)
	firstIPv6 := n1.identity.CryptoIPv6.String()
	require.NoError(t, n1.Shutdown(t.Context()))

	n2, err := New(t.Context(), zap.NewNop(), cfg, []byte("test-pass"))
	require.NoError(t, err)
	defer n2.Shutdown(t.Context())

	require.Equal(t, firstIPv6, n2.identity.CryptoIPv6.String())
	require.FileExists(t, filepath.Join(cfg.DigHome, identityFileName))
}

func TestStartAndShutdownWithoutDHT(t *testing.T) {
	n, err := New(t.Context(), zap.NewNop(), testConfig(t), []byte("test-pass"))
	require.NoError(t, err)

	require.NoError(t, n.Start(t.Context()))
	require.NoError(t, n.Shutdown(t.Context()))
}

func TestPeerForMergesKnownFieldsOnly(t *testing.T) {
	n, err := New(t.Context(), zap.NewNop(), testConfig(t), []byte("test-pass"))
	require.NoError(t, err)
	defer n.Shutdown(t.Context())

	n.handleStoreAnnouncement("", mustJSON(t, storeAnnouncement{
		StoreID: "deadbeef",
	}))
	// no crypto-ipv6 on the announcement: peerFor must not panic or
	// insert a zero-value entry keyed by an empty peer id.
	require.Empty(t, n.peers.List())
}

func TestWrongPassphraseRecreatesIdentity(t *testing.T) {
	cfg := testConfig(t)

	n1, err := New(t.Context(), zap.NewNop(), cfg, []byte("correct-pass"))
	require.NoError(t, err)
	firstIPv6 := n1.identity.CryptoIPv6.String()
	require.NoError(t, n1.Shutdown(t.Context()))

	n2, err := New(t.Context(), zap.NewNop(), cfg, []byte("wrong-pass"))
	require.NoError(t, err)
	defer n2.Shutdown(t.Context())

	require.NotEqual(t, firstIPv6, n2.identity.CryptoIPv6.String())
	require.FileExists(t, filepath.Join(cfg.DigHome, identityFileName+".backup"))
}
