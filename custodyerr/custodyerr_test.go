package custodyerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapPreservesInnerKind(t *testing.T) {
	inner := New(Busy, "signing.Start", "did already has a session")
	wrapped := Wrap(inner, Unknown, "coordinator.Sign", "cannot start signing")
	require.Equal(t, Busy, KindOf(wrapped))
	require.ErrorIs(t, wrapped, inner)
}

func TestWrapOverridesWithExplicitKind(t *testing.T) {
	inner := errors.New("boom")
	wrapped := Wrap(inner, CryptoFailure, "frostcrypto.Verify", "signature check failed")
	require.Equal(t, CryptoFailure, KindOf(wrapped))
	require.True(t, errors.Is(wrapped, inner))
}

func TestIsMatchesOnKindOnly(t *testing.T) {
	err := New(NotFound, "registry.Get", "did not found")
	require.True(t, Is(err, NotFound))
	require.False(t, Is(err, Busy))
}

func TestKindOfUnknownForPlainErrors(t *testing.T) {
	require.Equal(t, Unknown, KindOf(errors.New("plain")))
}
