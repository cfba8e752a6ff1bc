package node

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// controlStatus is the /status response shape, modeled on the teacher's
// own /status handler but reporting this domain's state instead of
// mixnet chain state.
type controlStatus struct {
	PeerID       string    `json:"peer_id"`
	CryptoIPv6   string    `json:"crypto_ipv6"`
	NetworkID    string    `json:"network_id"`
	Capabilities []string  `json:"capabilities"`
	StoreCount   int       `json:"store_count"`
	PeerCount    int       `json:"peer_count"`
	Time         time.Time `json:"time"`
}

// newControlServer builds the localhost-only debug surface (§9
// supplement D.2/D.3): bound to 127.0.0.1 exactly as the teacher's
// ControlHandler is, so the guard is the listen address itself rather
// than a per-request check.
func (n *Node) newControlServer() *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		caps := make([]string, 0, len(n.self.Capabilities))
		for _, c := range n.self.Capabilities {
			caps = append(caps, c.Code)
		}
		writeControlJSON(w, controlStatus{
			PeerID:       n.tp.PeerID().String(),
			CryptoIPv6:   n.identity.CryptoIPv6.String(),
			NetworkID:    n.cfg.NetworkID,
			Capabilities: caps,
			StoreCount:   len(n.stores.List()),
			PeerCount:    len(n.peers.List()),
			Time:         time.Now().UTC(),
		})
	})

	mux.HandleFunc("/peers", func(w http.ResponseWriter, r *http.Request) {
		writeControlJSON(w, n.peers.List())
	})

	return &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", n.cfg.ControlPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func writeControlJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (n *Node) startControlServer() {
	if n.cfg.ControlPort == 0 {
		return
	}
	n.control = n.newControlServer()
	go func() {
		if err := n.control.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			n.log.Warn("node: control server stopped", zap.Error(err))
		}
	}()
}

func (n *Node) stopControlServer(ctx context.Context) {
	if n.control == nil {
		return
	}
	if err := n.control.Shutdown(ctx); err != nil {
		n.log.Warn("node: control server shutdown", zap.Error(err))
	}
}
