package bootstrap

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"strings"

	"github.com/dig-network/dignode/internal/digerr"
	"github.com/dig-network/dignode/internal/store"
)

// writeVerified streams body to <dig-home>/<store-id>.dig.part, verifies
// its SHA-256 against storeID, and atomically renames into place on
// success. Unlike internal/download's writeWhole, which renames whatever
// bytes a peer served without checking them against storeID, a
// bootstrap body whose hash does not match is removed and rejected.
func writeVerified(stores *store.Registry, storeID string, size int64, body io.Reader) error {
	finalPath := stores.PathFor(storeID)
	tmpPath := finalPath + ".part"

	f, err := os.Create(tmpPath)
	if err != nil {
		return err
	}

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(f, h), body); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	sum := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(sum, storeID) {
		os.Remove(tmpPath)
		return digerr.ErrIntegrityFailure
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return stores.Add(storeID)
}
