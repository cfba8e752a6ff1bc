package syncsvc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

func TestMissingStoresDiff(t *testing.T) {
	holders := map[string][]peer.ID{
		"aaaa": {"p1"},
		"bbbb": {"p1", "p2"},
	}
	local := map[string]bool{"aaaa": true}

	got := missingStores(holders, local)
	require.ElementsMatch(t, []string{"bbbb"}, got)
}

func TestMissingStoresDiffAllLocal(t *testing.T) {
	holders := map[string][]peer.ID{"aaaa": {"p1"}}
	local := map[string]bool{"aaaa": true}
	require.Empty(t, missingStores(holders, local))
}

type countingDownloader struct {
	mu    sync.Mutex
	calls int
}

func (d *countingDownloader) Download(ctx context.Context, storeID string, holders []peer.ID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return nil
}

// TestSingleflightCollapsesConcurrentRuns exercises the singleflight
// guard that TriggerOnce uses directly, without a Scheduler: five
// overlapping Do calls against a slow function run it at least once and
// never more than once per call.
func TestSingleflightCollapsesConcurrentRuns(t *testing.T) {
	var sf singleflight.Group
	var mu sync.Mutex
	executions := 0

	slow := func() (any, error) {
		mu.Lock()
		executions++
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		return nil, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = sf.Do("sync", slow)
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.LessOrEqual(t, executions, 5)
	require.GreaterOrEqual(t, executions, 1)
}

func TestSchedulerConstructs(t *testing.T) {
	log := zap.NewNop()
	s := New(log, time.Minute, nil, nil, nil, &countingDownloader{}, nil)
	require.NotNil(t, s)
}
