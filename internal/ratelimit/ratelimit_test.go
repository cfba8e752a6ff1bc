package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBucketAllowsUpToCapacity(t *testing.T) {
	b := newBucket(100)
	for i := 0; i < 100; i++ {
		require.True(t, b.Allow(), "request %d should be allowed", i+1)
	}
	require.False(t, b.Allow(), "101st request should be dropped")
}

func TestLimiterPerPeerIsolation(t *testing.T) {
	l := New(2)
	require.True(t, l.Allow("peer-a"))
	require.True(t, l.Allow("peer-a"))
	require.False(t, l.Allow("peer-a"))

	// A different peer has its own bucket.
	require.True(t, l.Allow("peer-b"))
}

func TestSanitizePathStripsTraversalAndLeadingSlash(t *testing.T) {
	require.Equal(t, "a/b", SanitizePath("/a/../../b"))
	require.Equal(t, "x/y", SanitizePath(`x\y`))
	require.Equal(t, "c/d", SanitizePath("//c///d"))
}

func TestValidRequestType(t *testing.T) {
	require.True(t, ValidRequestType("HANDSHAKE"))
	require.True(t, ValidRequestType("GET_FILE_RANGE"))
	require.False(t, ValidRequestType("DELETE_EVERYTHING"))
}

func TestValidStoreIDBoundaries(t *testing.T) {
	require.True(t, ValidStoreID(strRepeat("a", 32)))
	require.False(t, ValidStoreID(strRepeat("a", 31)))
}

func strRepeat(s string, n int) string {
	out := make([]byte, n)
	for i := range out {
		out[i] = s[0]
	}
	return string(out)
}
