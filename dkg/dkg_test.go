package dkg_test

import (
	"context"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/vault-custody/custody-engine/audit"
	"github.com/vault-custody/custody-engine/dkg"
	"github.com/vault-custody/custody-engine/frostcrypto"
	"github.com/vault-custody/custody-engine/peer"
	"github.com/vault-custody/custody-engine/registry"
	"github.com/vault-custody/custody-engine/vault"
	"github.com/vault-custody/custody-engine/vault/memory"
)

type node struct {
	id       string
	engine   *dkg.Engine
	vault    *vault.Store
	registry *registry.Registry
}

func newNetwork(t *testing.T, nodeIDs []string) (map[string]*node, *peer.InMemoryDirectory) {
	t.Helper()
	dir := peer.NewInMemoryDirectory()
	nodes := make(map[string]*node, len(nodeIDs))

	for _, id := range nodeIDs {
		v := vault.New(memory.New())
		reg := registry.New(audit.New(100, nil))
		eng := dkg.New(id, dir, v, reg, audit.New(100, nil), clockwork.NewFakeClock())
		nodes[id] = &node{id: id, engine: eng, vault: v, registry: reg}
	}
	for _, n := range nodes {
		dir.Register(peer.NewInMemoryChannel(n.id, n.engine, noopSigning{}))
	}
	return nodes, dir
}

type noopSigning struct{}

func (noopSigning) GenerateNonce(context.Context, string) (*frostcrypto.Commitment, error) {
	return nil, nil
}
func (noopSigning) PartialSign(context.Context, string, *frostcrypto.SigningPackage) (frostcrypto.Scalar, error) {
	return nil, nil
}

func TestThreeOfFiveDKGFinalizesWithMatchingGroupKey(t *testing.T) {
	ids := []string{"node-a", "node-b", "node-c", "node-d", "node-e"}
	nodes, _ := newNetwork(t, ids)

	require.NoError(t, nodes["node-a"].vault.StoreRecord("vault-1", vault.NewRecord("roothash:x")))
	for _, n := range nodes {
		if n.id == "node-a" {
			continue
		}
		require.NoError(t, n.vault.StoreRecord("vault-1", vault.NewRecord("roothash:x")))
	}
	for _, n := range nodes {
		require.NoError(t, n.registry.RegisterOperationalDID("did:op:1", "root", "vault-1", nil))
	}

	groupID, err := nodes["node-a"].engine.StartSession(context.Background(), "did:op:1", "vault-1", 3, ids)
	require.NoError(t, err)
	require.NotEmpty(t, groupID)

	for _, n := range nodes {
		state, err := n.engine.State(groupID)
		require.NoError(t, err)
		require.Equal(t, dkg.Finalized, state)
	}

	var descriptors []*registry.GroupDescriptor
	for _, n := range nodes {
		d, err := n.registry.GetGroupDescriptor("did:op:1")
		require.NoError(t, err)
		descriptors = append(descriptors, d)
	}
	for _, d := range descriptors[1:] {
		require.True(t, d.GroupPublicKey.Equal(descriptors[0].GroupPublicKey))
	}
}

func TestStartSessionRejectsConcurrentSessionForSameDID(t *testing.T) {
	ids := []string{"node-a", "node-b", "node-c"}
	nodes, _ := newNetwork(t, ids)
	for _, n := range nodes {
		require.NoError(t, n.vault.StoreRecord("vault-1", vault.NewRecord("roothash:x")))
		require.NoError(t, n.registry.RegisterOperationalDID("did:op:1", "root", "vault-1", nil))
	}

	_, err := nodes["node-a"].engine.StartSession(context.Background(), "did:op:1", "vault-1", 2, ids)
	require.NoError(t, err)

	_, err = nodes["node-a"].engine.StartSession(context.Background(), "did:op:1", "vault-1", 2, ids)
	require.Error(t, err)
}
