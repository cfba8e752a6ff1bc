package digerr

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindMatchesWrappedSentinel(t *testing.T) {
	wrapped := fmt.Errorf("serving LIST_STORES: %w", ErrStoreNotFound)

	got, ok := Kind(wrapped)
	require.True(t, ok)
	require.ErrorIs(t, got, ErrStoreNotFound)
}

func TestKindUnknownError(t *testing.T) {
	_, ok := Kind(fmt.Errorf("some unrelated failure"))
	require.False(t, ok)
}
