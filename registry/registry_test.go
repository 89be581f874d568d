package registry_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vault-custody/custody-engine/custodyerr"
	"github.com/vault-custody/custody-engine/registry"
)

func TestRegisterOperationalDIDHashesRootDID(t *testing.T) {
	r := registry.New(nil)
	require.NoError(t, r.RegisterOperationalDID("did:op:1", "did:root:secret", "vault-1", nil))

	hash, err := r.GetRootHashForOperationalDID("did:op:1")
	require.NoError(t, err)
	require.Equal(t, registry.HashRootDID("did:root:secret"), hash)
	require.NotContains(t, hash, "secret")
}

func TestRegisterOperationalDIDRejectsDuplicate(t *testing.T) {
	r := registry.New(nil)
	require.NoError(t, r.RegisterOperationalDID("did:op:1", "root", "vault-1", nil))

	err := r.RegisterOperationalDID("did:op:1", "root", "vault-2", nil)
	require.Equal(t, custodyerr.AlreadyExists, custodyerr.KindOf(err))
}

func TestRotateOperationalDIDRenamesEntry(t *testing.T) {
	r := registry.New(nil)
	require.NoError(t, r.RegisterOperationalDID("did:op:old", "root", "vault-1", nil))

	require.NoError(t, r.RotateOperationalDID("did:op:old", "did:op:new"))

	_, err := r.GetVaultIDForOperationalDID("did:op:old")
	require.Equal(t, custodyerr.NotFound, custodyerr.KindOf(err))

	vaultID, err := r.GetVaultIDForOperationalDID("did:op:new")
	require.NoError(t, err)
	require.Equal(t, "vault-1", vaultID)
}

func TestRotateOperationalDIDFailsIfOldMissingOrNewTaken(t *testing.T) {
	r := registry.New(nil)
	require.NoError(t, r.RegisterOperationalDID("did:op:a", "root", "vault-a", nil))
	require.NoError(t, r.RegisterOperationalDID("did:op:b", "root", "vault-b", nil))

	err := r.RotateOperationalDID("did:op:missing", "did:op:c")
	require.Equal(t, custodyerr.NotFound, custodyerr.KindOf(err))

	err = r.RotateOperationalDID("did:op:a", "did:op:b")
	require.Equal(t, custodyerr.AlreadyExists, custodyerr.KindOf(err))
}

func TestRevokeOperationalDIDRemovesEntry(t *testing.T) {
	r := registry.New(nil)
	require.NoError(t, r.RegisterOperationalDID("did:op:1", "root", "vault-1", nil))
	require.NoError(t, r.RevokeOperationalDID("did:op:1"))

	_, err := r.GetVaultIDForOperationalDID("did:op:1")
	require.Equal(t, custodyerr.NotFound, custodyerr.KindOf(err))

	err = r.RevokeOperationalDID("did:op:1")
	require.Equal(t, custodyerr.NotFound, custodyerr.KindOf(err))
}

func TestGroupDescriptorAbsentUntilSet(t *testing.T) {
	r := registry.New(nil)
	require.NoError(t, r.RegisterOperationalDID("did:op:1", "root", "vault-1", nil))

	_, err := r.GetGroupDescriptor("did:op:1")
	require.Equal(t, custodyerr.NotFound, custodyerr.KindOf(err))

	descriptor := &registry.GroupDescriptor{GroupID: "g1", Threshold: 2}
	require.NoError(t, r.SetGroupDescriptor("did:op:1", descriptor))

	got, err := r.GetGroupDescriptor("did:op:1")
	require.NoError(t, err)
	require.Equal(t, "g1", got.GroupID)
}

func TestDIDDocumentStoreAndUpdate(t *testing.T) {
	r := registry.New(nil)
	require.NoError(t, r.RegisterOperationalDID("did:op:1", "root", "vault-1", nil))

	require.NoError(t, r.StoreDIDDocument("did:op:1", []byte(`{"id":"did:op:1"}`)))
	doc, err := r.GetDIDDocument("did:op:1")
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"did:op:1"}`, string(doc))

	require.NoError(t, r.UpdateDIDDocument("did:op:1", []byte(`{"id":"did:op:1","v":2}`)))
	doc, err = r.GetDIDDocument("did:op:1")
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"did:op:1","v":2}`, string(doc))
}
