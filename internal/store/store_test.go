package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	storeAA = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa" // 48 hex 'a'
	storeBB = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func writeStoreFile(t *testing.T, dir, storeID, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, storeID+".dig"), []byte(contents), 0o644))
}

func TestScanIndexesValidStoreFiles(t *testing.T) {
	dir := t.TempDir()
	writeStoreFile(t, dir, storeAA, "hello")
	writeStoreFile(t, dir, storeBB, "world")
	// not a .dig file: ignored
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	reg := New(zap.NewNop(), dir, nil)
	require.NoError(t, reg.Scan())

	ids := reg.List()
	require.ElementsMatch(t, []string{storeAA, storeBB}, ids)

	entry, ok := reg.Get(storeAA)
	require.True(t, ok)
	require.Equal(t, int64(5), entry.Size)
}

func TestScanIgnoresBadStemButContinues(t *testing.T) {
	dir := t.TempDir()
	writeStoreFile(t, dir, storeAA, "hello")
	// invalid stem: too short to be a store-id
	require.NoError(t, os.WriteFile(filepath.Join(dir, "short.dig"), []byte("x"), 0o644))

	reg := New(zap.NewNop(), dir, nil)
	require.NoError(t, reg.Scan())
	require.Equal(t, []string{storeAA}, reg.List())
}

func TestScanCreatesMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "does-not-exist-yet")
	reg := New(zap.NewNop(), dir, nil)
	require.NoError(t, reg.Scan())
	require.Empty(t, reg.List())

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestContentVerifiedFlagsMismatch(t *testing.T) {
	dir := t.TempDir()
	// filename does not match the hash of "mismatched contents"
	writeStoreFile(t, dir, storeAA, "mismatched contents")

	reg := New(zap.NewNop(), dir, nil)
	require.NoError(t, reg.Scan())

	entry, ok := reg.Get(storeAA)
	require.True(t, ok)
	require.False(t, entry.ContentVerified)
}

func TestAddAndRemoveNotifyOnChange(t *testing.T) {
	dir := t.TempDir()
	var changes []string
	reg := New(zap.NewNop(), dir, func(storeID string, removed bool) {
		verb := "added"
		if removed {
			verb = "removed"
		}
		changes = append(changes, storeID+":"+verb)
	})

	writeStoreFile(t, dir, storeAA, "hello")
	require.NoError(t, reg.Add(storeAA))
	reg.Remove(storeAA)

	require.Equal(t, []string{storeAA + ":added", storeAA + ":removed"}, changes)
	require.Empty(t, reg.List())
}

func TestRescanUnchangedDirectoryYieldsSameContents(t *testing.T) {
	dir := t.TempDir()
	writeStoreFile(t, dir, storeAA, "hello")

	reg := New(zap.NewNop(), dir, nil)
	require.NoError(t, reg.Scan())
	first, _ := reg.Get(storeAA)

	require.NoError(t, reg.Scan())
	second, _ := reg.Get(storeAA)

	require.Equal(t, first.ContentHash, second.ContentHash)
	require.Equal(t, first.Size, second.Size)
}
