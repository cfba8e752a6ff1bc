package bootstrap

import (
	"context"

	"github.com/dig-network/dignode/internal/protocol"
)

// RegisterSelf advertises this node's overlay identity and store set,
// never its real_addresses field (§4.10: "never real addresses in the
// public view"). stores is the current local store-id list.
func (c *Client) RegisterSelf(ctx context.Context, self protocol.Identity, stores []string, now int64) (RegisterResponse, error) {
	caps := make([]string, 0, len(self.Capabilities))
	for _, d := range self.Capabilities {
		caps = append(caps, d.Code)
	}

	return c.Register(ctx, RegisterRequest{
		PeerID:          self.PeerID,
		CryptoIPv6:      self.CryptoIPv6.String(),
		Stores:          stores,
		Capabilities:    caps,
		NetworkID:       self.NetworkID,
		SoftwareVersion: self.SoftwareVersion,
		Timestamp:       now,
		Version:         self.ProtocolVersion,
	})
}
