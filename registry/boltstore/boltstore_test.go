package boltstore_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vault-custody/custody-engine/custodyerr"
	"github.com/vault-custody/custody-engine/registry"
	"github.com/vault-custody/custody-engine/registry/boltstore"
)

func TestSaveLoadRoundTrips(t *testing.T) {
	s, err := boltstore.Open(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	defer s.Close()

	entry := &registry.Entry{
		OperationalDID: "did:op:1",
		RootDIDHash:    registry.HashRootDID("root"),
		VaultID:        "vault-1",
		DIDDocument:    []byte(`{"id":"did:op:1"}`),
	}
	require.NoError(t, s.Save(entry))

	got, err := s.Load("did:op:1")
	require.NoError(t, err)
	require.Equal(t, entry.VaultID, got.VaultID)
	require.Equal(t, entry.RootDIDHash, got.RootDIDHash)
}

func TestLoadMissingReturnsNotFound(t *testing.T) {
	s, err := boltstore.Open(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Load("missing")
	require.Equal(t, custodyerr.NotFound, custodyerr.KindOf(err))
}

func TestDeleteRemovesEntry(t *testing.T) {
	s, err := boltstore.Open(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Save(&registry.Entry{OperationalDID: "did:op:1", VaultID: "v1"}))
	require.NoError(t, s.Delete("did:op:1"))

	_, err = s.Load("did:op:1")
	require.Equal(t, custodyerr.NotFound, custodyerr.KindOf(err))
}
