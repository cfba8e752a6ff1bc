package download

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNumChunksForExactMultiple(t *testing.T) {
	require.Equal(t, 4, numChunksFor(4*chunkSize))
}

func TestNumChunksForPartialLastChunk(t *testing.T) {
	require.Equal(t, 2, numChunksFor(chunkSize+1))
}

func TestChunkBoundsLastChunkTruncated(t *testing.T) {
	size := int64(chunkSize + 100)
	start, end := chunkBounds(1, size)
	require.Equal(t, int64(chunkSize), start)
	require.Equal(t, size-1, end)
	require.Equal(t, int64(100), end-start+1)
}

func TestChunkBoundsFirstChunkFull(t *testing.T) {
	size := int64(3 * chunkSize)
	start, end := chunkBounds(0, size)
	require.Equal(t, int64(0), start)
	require.Equal(t, int64(chunkSize-1), end)
}

func TestSectionWriterAdvancesOffset(t *testing.T) {
	dir := t.TempDir()
	f, err := os.Create(filepath.Join(dir, "part"))
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, f.Truncate(10))

	w := &sectionWriter{f: f, offset: 2}
	n, err := w.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, 3, n)
	n2, err := w.Write([]byte{4, 5})
	require.NoError(t, err)
	require.Equal(t, 2, n2)

	got := make([]byte, 10)
	_, err = f.ReadAt(got, 0)
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 1, 2, 3, 4, 5, 0, 0, 0}, got)
}

func TestResumeManifestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resume.db")
	m, err := OpenResumeManifest(path)
	require.NoError(t, err)
	defer m.Close()

	acked, err := m.AckedChunks("store-a")
	require.NoError(t, err)
	require.Empty(t, acked)

	require.NoError(t, m.MarkAcked("store-a", 0))
	require.NoError(t, m.MarkAcked("store-a", 2))

	acked, err = m.AckedChunks("store-a")
	require.NoError(t, err)
	require.Equal(t, map[int]bool{0: true, 2: true}, acked)

	require.NoError(t, m.Clear("store-a"))
	acked, err = m.AckedChunks("store-a")
	require.NoError(t, err)
	require.Empty(t, acked)
}

func TestResumeManifestIdempotentMark(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resume2.db")
	m, err := OpenResumeManifest(path)
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.MarkAcked("s", 1))
	require.NoError(t, m.MarkAcked("s", 1))
	acked, err := m.AckedChunks("s")
	require.NoError(t, err)
	require.Len(t, acked, 1)
}
