package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitCommaListTrimsAndDropsEmpty(t *testing.T) {
	require.Equal(t,
		[]string{"https://a.example", "https://b.example"},
		splitCommaList(" https://a.example ,https://b.example,,"),
	)
}

func TestSplitCommaListEmptyInput(t *testing.T) {
	require.Nil(t, splitCommaList(""))
}

func TestResolvePassphrasePrefersExplicitValue(t *testing.T) {
	pass, err := resolvePassphrase("supersecret")
	require.NoError(t, err)
	require.Equal(t, []byte("supersecret"), pass)
}
