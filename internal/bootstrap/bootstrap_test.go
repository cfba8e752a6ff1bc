package bootstrap

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dig-network/dignode/internal/peerstore"
	"github.com/dig-network/dignode/internal/store"
)

func newTestStores(t *testing.T) *store.Registry {
	t.Helper()
	return store.New(zap.NewNop(), t.TempDir(), nil)
}

func TestRegisterSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/register", r.URL.Path)
		var req RegisterRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "peer-a", req.PeerID)
		require.Empty(t, req.RealAddresses)
		_ = json.NewEncoder(w).Encode(RegisterResponse{Success: true, PeerID: req.PeerID, TotalPeers: 3})
	}))
	defer srv.Close()

	c := New(zap.NewNop(), []string{srv.URL}, "peer-a", nil)
	resp, err := c.Register(t.Context(), RegisterRequest{PeerID: "peer-a"})
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.Equal(t, 3, resp.TotalPeers)
}

func TestDirectoryRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/crypto-ipv6-directory", r.URL.Path)
		require.Equal(t, "true", r.URL.Query().Get("includeStores"))
		_ = json.NewEncoder(w).Encode(DirectoryResponse{
			Peers: []DirectoryPeer{
				{PeerID: "p1", CryptoIPv6: "fd00:0000:0000:0000:0000:0000:0000:0001", Stores: []string{"aa"}},
			},
			Total: 1,
		})
	}))
	defer srv.Close()

	c := New(zap.NewNop(), []string{srv.URL}, "self", nil)
	resp, err := c.Directory(t.Context(), true)
	require.NoError(t, err)
	require.Len(t, resp.Peers, 1)
	require.Equal(t, "p1", resp.Peers[0].PeerID)
}

func TestSyncDirectoryUpsertsParseablePeers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(DirectoryResponse{
			Peers: []DirectoryPeer{
				{PeerID: "good", CryptoIPv6: "fd00:0000:0000:0000:0000:0000:0000:0001", Capabilities: []string{"store_sync"}},
				{PeerID: "bad", CryptoIPv6: "not-an-ipv6"},
			},
		})
	}))
	defer srv.Close()

	c := New(zap.NewNop(), []string{srv.URL}, "self", nil)
	peers := peerstore.New("self")
	require.NoError(t, c.SyncDirectory(t.Context(), peers))

	p, ok := peers.Get("good")
	require.True(t, ok)
	require.True(t, p.HasCapability(peerstore.CapStoreSync))

	_, ok = peers.Get("bad")
	require.False(t, ok)
}

func TestTryServersFallsThroughOnFailure(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(RegisterResponse{Success: true, PeerID: "x", TotalPeers: 1})
	}))
	defer good.Close()

	c := New(zap.NewNop(), []string{bad.URL, good.URL}, "x", nil)
	resp, err := c.Register(t.Context(), RegisterRequest{PeerID: "x"})
	require.NoError(t, err)
	require.True(t, resp.Success)
}

func TestTryServersAllFail(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	c := New(zap.NewNop(), []string{bad.URL}, "x", nil)
	_, err := c.Register(t.Context(), RegisterRequest{PeerID: "x"})
	require.Error(t, err)
}

func TestNoServersConfigured(t *testing.T) {
	c := New(zap.NewNop(), nil, "x", nil)
	_, err := c.Register(t.Context(), RegisterRequest{PeerID: "x"})
	require.Error(t, err)
}

func TestFetchDirectWritesAndVerifiesStore(t *testing.T) {
	payload := []byte("store bytes")
	sum := sha256.Sum256(payload)
	storeID := hex.EncodeToString(sum[:])

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/bootstrap-turn-relay", r.URL.Path)
		var req TurnRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, storeID, req.StoreID)
		require.Equal(t, "self", req.ToPeerID)
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	stores := newTestStores(t)
	c := New(zap.NewNop(), []string{srv.URL}, "self", stores)

	require.NoError(t, c.PullMissing(t.Context(), []string{storeID}))

	entry, ok := stores.Get(storeID)
	require.True(t, ok)
	require.True(t, entry.ContentVerified)

	got, err := os.ReadFile(filepath.Join(stores.Dir(), storeID+".dig"))
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestFetchDirectRejectsHashMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not the right bytes"))
	}))
	defer srv.Close()

	stores := newTestStores(t)
	c := New(zap.NewNop(), []string{srv.URL}, "self", stores)

	storeID := "0000000000000000000000000000000000000000000000000000000000000000"
	err := c.PullMissing(t.Context(), []string{storeID})
	require.Error(t, err)

	_, ok := stores.Get(storeID)
	require.False(t, ok)
}

func TestResolveHoldersFiltersToAnnouncedStore(t *testing.T) {
	_, pub, err := crypto.GenerateEd25519Key(rand.Reader)
	require.NoError(t, err)
	validID, err := peer.IDFromPublicKey(pub)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(DirectoryResponse{
			Peers: []DirectoryPeer{
				{PeerID: validID.String(), Stores: []string{"aa"}},
				{PeerID: "not-a-valid-peer-id", Stores: []string{"aa"}},
				{PeerID: validID.String(), Stores: []string{"bb"}},
			},
		})
	}))
	defer srv.Close()

	c := New(zap.NewNop(), []string{srv.URL}, "self", nil)
	holders, err := c.ResolveHolders(t.Context(), "aa")
	require.NoError(t, err)
	require.Len(t, holders, 1)
}

func TestResolvePrivacyAddrDecodesBase64(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(DirectoryResponse{
			Peers: []DirectoryPeer{
				{CryptoIPv6: "fd00:0000:0000:0000:0000:0000:0000:0001", EncryptedAddresses: "c2VhbGVkLWJ5dGVz"},
			},
		})
	}))
	defer srv.Close()

	c := New(zap.NewNop(), []string{srv.URL}, "self", nil)
	sealed, err := c.ResolvePrivacyAddr(t.Context(), "fd00:0000:0000:0000:0000:0000:0000:0001")
	require.NoError(t, err)
	require.Equal(t, "sealed-bytes", string(sealed))
}

func TestResolvePrivacyAddrNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(DirectoryResponse{})
	}))
	defer srv.Close()

	c := New(zap.NewNop(), []string{srv.URL}, "self", nil)
	_, err := c.ResolvePrivacyAddr(t.Context(), "fd00::9")
	require.Error(t, err)
}
