// Package store implements the dig store registry (C2): it indexes local
// .dig files by store-id, watches the store directory for changes, and
// maintains each entry's size and content hash.
package store

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	sha256simd "github.com/minio/sha256-simd"
	"go.uber.org/zap"

	"github.com/dig-network/dignode/internal/digurn"
)

const fileSuffix = ".dig"

// Entry is one store as held in the registry.
type Entry struct {
	StoreID         string
	Path            string
	Size            int64
	ContentHash     string // hex sha256
	CreatedAt       time.Time
	ContentVerified bool // false if StoreID (filename) doesn't match ContentHash
}

// CID wraps the entry's content hash as a CIDv1(raw, sha2-256), suitable
// as a DHT-safe key.
func (e Entry) CID() (cid.Cid, error) {
	sum, err := hex.DecodeString(e.ContentHash)
	if err != nil {
		return cid.Undef, fmt.Errorf("store: decoding content hash: %w", err)
	}
	digest, err := mh.Encode(sum, mh.SHA2_256)
	if err != nil {
		return cid.Undef, fmt.Errorf("store: encoding multihash: %w", err)
	}
	return cid.NewCidV1(cid.Raw, digest), nil
}

// Registry is the exclusive-writer/many-reader store index described in
// §5: the directory watcher and the downloader write, every protocol
// handler reads.
type Registry struct {
	log *zap.Logger
	dir string

	mu      sync.RWMutex
	entries map[string]*Entry

	onChange func(storeID string, removed bool)
}

// New constructs a registry rooted at dir. onChange, if non-nil, is
// invoked after every add/update/removal so callers (DHT announce,
// privacy overlay) can react; it runs outside the registry lock.
func New(log *zap.Logger, dir string, onChange func(storeID string, removed bool)) *Registry {
	return &Registry{
		log:      log,
		dir:      dir,
		entries:  make(map[string]*Entry),
		onChange: onChange,
	}
}

// Scan enumerates dir for *.dig files and (re)builds the registry. Per
// spec §4.2: if dir is missing, an attempt is made to create it; on
// failure the registry stays empty and the caller should disable
// store_sync rather than abort.
func (r *Registry) Scan() error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		r.log.Warn("store directory unavailable, continuing as relay-only", zap.Error(err))
		return fmt.Errorf("store: ensuring dig home: %w", err)
	}

	files, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("store: reading dig home: %w", err)
	}

	fresh := make(map[string]*Entry, len(files))
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), fileSuffix) {
			continue
		}
		entry, err := r.loadOne(f.Name())
		if err != nil {
			r.log.Warn("skipping unreadable store file", zap.String("file", f.Name()), zap.Error(err))
			continue
		}
		fresh[entry.StoreID] = entry
	}

	r.mu.Lock()
	r.entries = fresh
	r.mu.Unlock()

	r.log.Info("store scan complete", zap.Int("count", len(fresh)))
	return nil
}

// loadOne hashes and stats a single <store-id>.dig file.
func (r *Registry) loadOne(filename string) (*Entry, error) {
	stem := strings.TrimSuffix(filename, fileSuffix)
	if !digurn.ValidStoreID(stem) {
		return nil, fmt.Errorf("store: filename stem %q is not a valid store-id", stem)
	}

	path := filepath.Join(r.dir, filename)
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("store: stat %s: %w", path, err)
	}
	bytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("store: reading %s: %w", path, err)
	}

	sum := sha256simd.Sum256(bytes)
	hash := hex.EncodeToString(sum[:])

	entry := &Entry{
		StoreID:         stem,
		Path:            path,
		Size:            info.Size(),
		ContentHash:     hash,
		CreatedAt:       birthTime(info),
		ContentVerified: strings.EqualFold(stem, hash),
	}
	r.log.Debug("loaded store",
		zap.String("store_id", stem),
		zap.String("size", humanize.Bytes(uint64(entry.Size))),
		zap.Bool("content_verified", entry.ContentVerified),
	)
	return entry, nil
}

// Add inserts or replaces a single entry by rereading path from disk,
// invoked by the watcher on create/modify events and by the download
// orchestrator after assembling a store.
func (r *Registry) Add(storeID string) error {
	entry, err := r.loadOne(storeID + fileSuffix)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.entries[entry.StoreID] = entry
	r.mu.Unlock()

	if r.onChange != nil {
		r.onChange(entry.StoreID, false)
	}
	return nil
}

// Remove drops storeID from the registry, invoked by the watcher on
// delete events.
func (r *Registry) Remove(storeID string) {
	r.mu.Lock()
	_, existed := r.entries[storeID]
	delete(r.entries, storeID)
	r.mu.Unlock()

	if existed && r.onChange != nil {
		r.onChange(storeID, true)
	}
}

// Get returns a copy of the entry for storeID, if present.
func (r *Registry) Get(storeID string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[storeID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// List returns the store-ids currently held, in no particular order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for id := range r.entries {
		out = append(out, id)
	}
	return out
}

// Dir reports the directory this registry watches.
func (r *Registry) Dir() string { return r.dir }

// PathFor returns the on-disk path a freshly assembled storeID should be
// written to before calling Add, e.g. by internal/download.
func (r *Registry) PathFor(storeID string) string {
	return filepath.Join(r.dir, storeID+fileSuffix)
}
