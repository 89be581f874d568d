package zeroize

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCloseWipesBackingArray(t *testing.T) {
	secret := []byte("super-secret-key")
	z := New(secret)
	require.Equal(t, "super-secret-key", string(z.Bytes()))
	require.NoError(t, z.Close())
	for _, b := range secret {
		require.Equal(t, byte(0), b)
	}
	require.Nil(t, z.Bytes())
	require.Equal(t, 0, z.Len())
}

func TestCloseIsIdempotent(t *testing.T) {
	z := New([]byte{1, 2, 3})
	require.NoError(t, z.Close())
	require.NoError(t, z.Close())
}

func TestCloneLeavesOriginalIntact(t *testing.T) {
	original := []byte{9, 9, 9}
	z := Clone(original)
	require.NoError(t, z.Close())
	require.Equal(t, []byte{9, 9, 9}, original)
}
