package signing_test

import (
	"context"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/vault-custody/custody-engine/audit"
	"github.com/vault-custody/custody-engine/custodyerr"
	"github.com/vault-custody/custody-engine/dkg"
	"github.com/vault-custody/custody-engine/peer"
	"github.com/vault-custody/custody-engine/registry"
	"github.com/vault-custody/custody-engine/signing"
	"github.com/vault-custody/custody-engine/vault"
	"github.com/vault-custody/custody-engine/vault/memory"
)

type signingNode struct {
	id     string
	engine *dkg.Engine
	signer *signing.NodeSigner
	vault  *vault.Store
}

// buildFinalizedGroup runs a full DKG across ids and returns a Coordinator
// wired to the resulting group, ready to drive signing sessions.
func buildFinalizedGroup(t *testing.T, ids []string, threshold int) (*signing.Coordinator, *registry.Registry) {
	t.Helper()
	dir := peer.NewInMemoryDirectory()
	reg := registry.New(nil)
	require.NoError(t, reg.RegisterOperationalDID("did:op:1", "root", "vault-1", nil))

	nodes := make(map[string]*signingNode, len(ids))
	for _, id := range ids {
		v := vault.New(memory.New())
		require.NoError(t, v.StoreRecord("vault-1", vault.NewRecord("roothash:x")))
		eng := dkg.New(id, dir, v, reg, audit.New(100, nil), clockwork.NewFakeClock())
		signer := signing.NewNodeSigner(id, reg, v)
		nodes[id] = &signingNode{id: id, engine: eng, signer: signer, vault: v}
	}
	for _, n := range nodes {
		dir.Register(peer.NewInMemoryChannel(n.id, n.engine, n.signer))
	}

	groupID, err := nodes[ids[0]].engine.StartSession(context.Background(), "did:op:1", "vault-1", threshold, ids)
	require.NoError(t, err)
	for _, n := range nodes {
		state, err := n.engine.State(groupID)
		require.NoError(t, err)
		require.Equal(t, dkg.Finalized, state)
	}

	return signing.New(reg, dir, audit.New(100, nil)), reg
}

func TestSignAndVerifyThreeOfFive(t *testing.T) {
	coordinator, _ := buildFinalizedGroup(t, []string{"n1", "n2", "n3", "n4", "n5"}, 3)

	sig, err := coordinator.Sign(context.Background(), "did:op:1", []byte("hello custody"))
	require.NoError(t, err)
	require.Len(t, sig, 64)
}

func TestSignFailsNotFoundWithoutGroupDescriptor(t *testing.T) {
	dir := peer.NewInMemoryDirectory()
	reg := registry.New(nil)
	require.NoError(t, reg.RegisterOperationalDID("did:op:1", "root", "vault-1", nil))

	coordinator := signing.New(reg, dir, nil)
	_, err := coordinator.Sign(context.Background(), "did:op:1", []byte("msg"))
	require.Equal(t, custodyerr.NotFound, custodyerr.KindOf(err))
}

func TestPartialSignRefusesWithoutAnActiveNonce(t *testing.T) {
	_, reg := buildFinalizedGroup(t, []string{"n1", "n2", "n3"}, 2)

	vaultID, err := reg.GetVaultIDForOperationalDID("did:op:1")
	require.NoError(t, err)
	_ = vaultID

	// A node that never had generate_nonce called for it must refuse
	// partial_sign, per spec §4.5's ordering guarantee.
	v := vault.New(memory.New())
	require.NoError(t, v.StoreRecord("vault-1", vault.NewRecord("roothash:x")))
	signer := signing.NewNodeSigner("n1", reg, v)
	_, err = signer.PartialSign(context.Background(), "did:op:1", nil)
	require.Error(t, err)
}
