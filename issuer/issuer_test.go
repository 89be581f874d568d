package issuer_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vault-custody/custody-engine/custodyerr"
	"github.com/vault-custody/custody-engine/issuer"
)

func TestRegisterIssuerIsAuthorizedByDefault(t *testing.T) {
	reg := issuer.New()
	reg.RegisterIssuer("did:issuer:1", "vault-1", []byte{0x01, 0x02})

	require.True(t, reg.IsAuthorizedIssuer("did:issuer:1"))

	pk, err := reg.GetPublicKey("did:issuer:1")
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x02}, pk)

	ref, err := reg.GetVaultRef("did:issuer:1")
	require.NoError(t, err)
	require.Equal(t, "vault-1", ref)
}

func TestUnknownIssuerIsNotAuthorized(t *testing.T) {
	reg := issuer.New()
	require.False(t, reg.IsAuthorizedIssuer("did:issuer:ghost"))

	_, err := reg.GetPublicKey("did:issuer:ghost")
	require.Equal(t, custodyerr.NotFound, custodyerr.KindOf(err))
}

func TestDeactivateIssuerKeepsRecordButRevokesAuthorization(t *testing.T) {
	reg := issuer.New()
	reg.RegisterIssuer("did:issuer:1", "vault-1", nil)
	require.NoError(t, reg.DeactivateIssuer("did:issuer:1"))

	require.False(t, reg.IsAuthorizedIssuer("did:issuer:1"))
	rec, err := reg.GetIssuerRecord("did:issuer:1")
	require.NoError(t, err)
	require.False(t, rec.Active)
}

func TestUpdateIssuerOnlyTouchesProvidedFields(t *testing.T) {
	reg := issuer.New()
	reg.RegisterIssuer("did:issuer:1", "vault-1", []byte{0x01})

	newVault := "vault-2"
	require.NoError(t, reg.UpdateIssuer("did:issuer:1", nil, &newVault))

	ref, err := reg.GetVaultRef("did:issuer:1")
	require.NoError(t, err)
	require.Equal(t, "vault-2", ref)

	pk, err := reg.GetPublicKey("did:issuer:1")
	require.NoError(t, err)
	require.Equal(t, []byte{0x01}, pk)
}

func TestRemoveIssuerDeletesRecord(t *testing.T) {
	reg := issuer.New()
	reg.RegisterIssuer("did:issuer:1", "vault-1", nil)
	require.NoError(t, reg.RemoveIssuer("did:issuer:1"))

	require.False(t, reg.IsAuthorizedIssuer("did:issuer:1"))
	require.Equal(t, custodyerr.NotFound, custodyerr.KindOf(reg.RemoveIssuer("did:issuer:1")))
}
