package download

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/dig-network/dignode/internal/digerr"
	"github.com/dig-network/dignode/internal/protocol"
)

const maxChunkAttempts = 3 // the first try plus two retries

// downloadParallel fetches size bytes of storeID as fixed-size chunks
// spread round-robin across holders, up to maxConcurrency in flight at
// once, resuming from any chunks already acknowledged in the resume
// manifest from a previous attempt.
func (c *Cascade) downloadParallel(ctx context.Context, storeID string, holders []peer.ID, size int64) error {
	finalPath := c.stores.PathFor(storeID)
	partPath := finalPath + ".part"

	f, err := os.OpenFile(partPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("download: opening part file: %w", err)
	}
	defer f.Close()
	if err := f.Truncate(size); err != nil {
		return fmt.Errorf("download: sizing part file: %w", err)
	}

	numChunks := numChunksFor(size)

	acked := map[int]bool{}
	if c.manifest != nil {
		acked, _ = c.manifest.AckedChunks(storeID)
	}

	var (
		wg       sync.WaitGroup
		sem      = make(chan struct{}, maxConcurrency)
		failedMu sync.Mutex
		failed   bool
	)

	for i := 0; i < numChunks; i++ {
		if acked[i] {
			continue
		}
		i := i
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			start, end := chunkBounds(i, size)

			if err := c.fetchChunkWithRetry(ctx, storeID, holders, i, start, end, f); err != nil {
				failedMu.Lock()
				failed = true
				failedMu.Unlock()
				return
			}
			if c.manifest != nil {
				_ = c.manifest.MarkAcked(storeID, i)
			}
		}()
	}
	wg.Wait()

	if failed {
		return digerr.ErrDownloadFailed
	}

	if err := finalizePart(f, partPath, finalPath); err != nil {
		return err
	}
	if c.manifest != nil {
		_ = c.manifest.Clear(storeID)
	}
	return c.stores.Add(storeID)
}

// fetchChunkWithRetry tries each holder in turn with bounded exponential
// backoff, matching the teacher's general retry posture for flaky peers.
func (c *Cascade) fetchChunkWithRetry(ctx context.Context, storeID string, holders []peer.ID, chunkID int, start, end int64, f *os.File) error {
	b := &backoff.Backoff{Min: 200 * time.Millisecond, Max: 5 * time.Second, Factor: 2, Jitter: true}

	var lastErr error
	for attempt := 0; attempt < maxChunkAttempts; attempt++ {
		holder := holders[(chunkID+attempt)%len(holders)]

		hdr, body, err := c.client.GetFileRange(ctx, holder, protocol.GetFileRangeRequest{
			StoreID:    storeID,
			RangeStart: start,
			RangeEnd:   end,
			ChunkID:    chunkID,
		})
		if err != nil {
			lastErr = err
			time.Sleep(b.Duration())
			continue
		}
		if !hdr.Success || hdr.Size != end-start+1 {
			body.Close()
			lastErr = digerr.ErrRangeOutOfBounds
			time.Sleep(b.Duration())
			continue
		}

		_, werr := io.Copy(&sectionWriter{f: f, offset: start}, io.LimitReader(body, hdr.Size))
		body.Close()
		if werr != nil {
			lastErr = werr
			time.Sleep(b.Duration())
			continue
		}
		return nil
	}
	return fmt.Errorf("download: chunk %d of %s exhausted retries: %w", chunkID, storeID, lastErr)
}

// finalizePart closes out the assembled part file and renames it into
// place. The registry computes and records the actual content hash on
// Add; storeID is an opaque content handle, not a hash commitment, so
// a completed reassembly is never rejected here for not matching it.
func finalizePart(f *os.File, partPath, finalPath string) error {
	if err := f.Sync(); err != nil {
		return err
	}
	return os.Rename(partPath, finalPath)
}

// numChunksFor returns how many chunkSize-sized pieces cover size bytes.
func numChunksFor(size int64) int {
	return int((size + chunkSize - 1) / chunkSize)
}

// chunkBounds returns the inclusive byte range of chunk index i of a
// file of the given size.
func chunkBounds(i int, size int64) (start, end int64) {
	start = int64(i) * chunkSize
	end = start + chunkSize - 1
	if end >= size {
		end = size - 1
	}
	return start, end
}

// sectionWriter writes sequentially starting at a fixed file offset,
// advancing with each Write call; used so concurrent chunk writers each
// hold their own cursor into the shared part file.
type sectionWriter struct {
	f      *os.File
	offset int64
}

func (w *sectionWriter) Write(p []byte) (int, error) {
	n, err := w.f.WriteAt(p, w.offset)
	w.offset += int64(n)
	return n, err
}
