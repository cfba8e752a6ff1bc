package bootstrap

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/dig-network/dignode/internal/digerr"
)

// ResolvePrivacyAddr implements internal/privacy's BootstrapResolve: the
// last-resort step of address resolution (§4.9 step 3). It looks up
// cryptoIPv6 in the directory and returns its encrypted_addresses blob,
// the same self-sealed ciphertext the owning peer published to the DHT
// (§3's "encrypted_addresses" peer attribute) — the bootstrap directory
// mirrors it rather than exposing readable addresses.
func (c *Client) ResolvePrivacyAddr(ctx context.Context, cryptoIPv6 string) ([]byte, error) {
	resp, err := c.Directory(ctx, false)
	if err != nil {
		return nil, err
	}
	for _, dp := range resp.Peers {
		if dp.CryptoIPv6 != cryptoIPv6 || dp.EncryptedAddresses == "" {
			continue
		}
		sealed, err := base64.StdEncoding.DecodeString(dp.EncryptedAddresses)
		if err != nil {
			continue
		}
		return sealed, nil
	}
	return nil, fmt.Errorf("bootstrap: %w: no record for %s", digerr.ErrResolutionUnavailable, cryptoIPv6)
}
