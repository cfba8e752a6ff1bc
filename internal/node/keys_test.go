package node

import (
	"crypto/rand"
	"testing"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/stretchr/testify/require"
)

func TestSealOpenIdentityRoundTrip(t *testing.T) {
	priv, _, err := crypto.GenerateEd25519Key(rand.Reader)
	require.NoError(t, err)

	sealed, err := sealIdentity(priv, []byte("pass"))
	require.NoError(t, err)

	opened, err := openIdentity(sealed, []byte("pass"))
	require.NoError(t, err)

	rawA, err := priv.Raw()
	require.NoError(t, err)
	rawB, err := opened.Raw()
	require.NoError(t, err)
	require.Equal(t, rawA, rawB)
}

func TestOpenIdentityWrongPassphraseFails(t *testing.T) {
	priv, _, err := crypto.GenerateEd25519Key(rand.Reader)
	require.NoError(t, err)

	sealed, err := sealIdentity(priv, []byte("pass"))
	require.NoError(t, err)

	_, err = openIdentity(sealed, []byte("nope"))
	require.Error(t, err)
}

func TestOpenIdentityRejectsTruncatedFile(t *testing.T) {
	_, err := openIdentity([]byte("too short"), []byte("pass"))
	require.Error(t, err)
}

func TestOpenIdentityRejectsBadMagic(t *testing.T) {
	priv, _, err := crypto.GenerateEd25519Key(rand.Reader)
	require.NoError(t, err)
	sealed, err := sealIdentity(priv, []byte("pass"))
	require.NoError(t, err)
	sealed[0] ^= 0xFF

	_, err = openIdentity(sealed, []byte("pass"))
	require.Error(t, err)
}
