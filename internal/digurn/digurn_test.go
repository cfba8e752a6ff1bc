package digurn

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/dig-network/dignode/internal/digerr"
)

func TestParseFullForm(t *testing.T) {
	storeID := "aa11bb22cc33dd44ee55ff6600112233"
	rootHash := "00112233445566778899aabbccddeeff0011223"

	u, err := Parse("urn:dig:chia:" + storeID + ":" + rootHash + "/foo/bar.html")
	require.NoError(t, err)
	require.Equal(t, storeID, u.StoreID)
	require.Equal(t, rootHash, u.RootHash)
	require.Equal(t, "foo/bar.html", u.ResourceKey)
}

func TestParseDefaultsResourceKey(t *testing.T) {
	storeID := "aa11bb22cc33dd44ee55ff6600112233"
	u, err := Parse("urn:dig:chia:" + storeID)
	require.NoError(t, err)
	require.Equal(t, "index.html", u.ResourceKey)
	require.Empty(t, u.RootHash)
}

func TestParseCaseInsensitiveScheme(t *testing.T) {
	storeID := "aa11bb22cc33dd44ee55ff6600112233"
	u, err := Parse("URN:DIG:CHIA:" + storeID)
	require.NoError(t, err)
	require.Equal(t, storeID, u.StoreID)
}

func TestParseInvalidYieldsInvalidURN(t *testing.T) {
	_, err := Parse("not-a-urn-at-all")
	require.ErrorIs(t, err, digerr.ErrInvalidURN)
}

func TestParseRejectsShortStoreID(t *testing.T) {
	_, err := Parse("urn:dig:chia:" + "abcd1234") // far fewer than 32 chars
	require.ErrorIs(t, err, digerr.ErrInvalidURN)
}

func TestFormatParseRoundTrip(t *testing.T) {
	storeID := "aa11bb22cc33dd44ee55ff6600112233"
	rootHash := "00112233445566778899aabbccddeeff0011223"

	formatted := Format(storeID, rootHash, "widget.js")
	u, err := Parse(formatted)
	require.NoError(t, err)
	require.Equal(t, storeID, u.StoreID)
	require.Equal(t, rootHash, u.RootHash)
	require.Equal(t, "widget.js", u.ResourceKey)
}

func TestValidStoreIDBoundaries(t *testing.T) {
	require.False(t, ValidStoreID(repeatHex(31)))
	require.True(t, ValidStoreID(repeatHex(32)))
	require.True(t, ValidStoreID(repeatHex(128)))
	require.False(t, ValidStoreID(repeatHex(129)))
}

func repeatHex(n int) string {
	out := make([]byte, n)
	for i := range out {
		out[i] = "0123456789abcdef"[i%16]
	}
	return string(out)
}
