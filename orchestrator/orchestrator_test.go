package orchestrator_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/vault-custody/custody-engine/audit"
	"github.com/vault-custody/custody-engine/custodyerr"
	"github.com/vault-custody/custody-engine/dkg"
	"github.com/vault-custody/custody-engine/orchestrator"
	"github.com/vault-custody/custody-engine/peer"
	"github.com/vault-custody/custody-engine/registry"
	"github.com/vault-custody/custody-engine/signing"
	"github.com/vault-custody/custody-engine/vault"
	"github.com/vault-custody/custody-engine/vault/memory"
)

// fleet wires a DKG engine + signer for every node over a shared
// InMemoryDirectory, all bound to a single shared registry.
type fleet struct {
	dir    *peer.InMemoryDirectory
	reg    *registry.Registry
	eng    map[string]*dkg.Engine
	vaults map[string]*vault.Store
}

// newFleet wires one dkg.Engine + one vault.Store per node, sharing a
// single registry. The orchestrator for a given run always shares its
// vaultStore with that node's own dkg.Engine, since it is the initiating
// node's own local process that drives both.
func newFleet(t *testing.T, ids []string) *fleet {
	t.Helper()
	dir := peer.NewInMemoryDirectory()
	reg := registry.New(nil)
	auditLog := audit.New(100, nil)

	engines := make(map[string]*dkg.Engine, len(ids))
	vaults := make(map[string]*vault.Store, len(ids))
	for _, id := range ids {
		v := vault.New(memory.New())
		eng := dkg.New(id, dir, v, reg, auditLog, clockwork.NewFakeClock())
		signer := signing.NewNodeSigner(id, reg, v)
		dir.Register(peer.NewInMemoryChannel(id, eng, signer))
		engines[id] = eng
		vaults[id] = v
	}
	return &fleet{dir: dir, reg: reg, eng: engines, vaults: vaults}
}

func TestProvisionVaultAndShardsRegistersGroup(t *testing.T) {
	ids := []string{"n1", "n2", "n3", "n4", "n5"}
	f := newFleet(t, ids)

	orc := orchestrator.New(f.vaults["n1"], f.reg, audit.New(100, nil), f.eng["n1"], clockwork.NewFakeClock())

	groupID, err := orc.ProvisionVaultAndShards(context.Background(), "did:op:new", "did:root:user", ids, orchestrator.DefaultThreshold(len(ids)))
	require.NoError(t, err)
	require.NotEmpty(t, groupID)

	descriptor, err := f.reg.GetGroupDescriptor("did:op:new")
	require.NoError(t, err)
	require.Equal(t, orchestrator.DefaultThreshold(len(ids)), descriptor.Threshold)
	require.Len(t, descriptor.Members, len(ids))

	vaultID, err := f.reg.GetVaultIDForOperationalDID("did:op:new")
	require.NoError(t, err)
	require.NotEmpty(t, vaultID)
}

func TestProvisionVaultAndShardsRollsBackOnDuplicateDID(t *testing.T) {
	ids := []string{"n1", "n2", "n3"}
	f := newFleet(t, ids)
	require.NoError(t, f.reg.RegisterOperationalDID("did:op:taken", "did:root:user", "vault-existing", nil))

	orc := orchestrator.New(f.vaults["n1"], f.reg, nil, f.eng["n1"], clockwork.NewFakeClock())

	_, err := orc.ProvisionVaultAndShards(context.Background(), "did:op:taken", "did:root:user", ids, 2)
	require.Error(t, err)
	require.Equal(t, custodyerr.AlreadyExists, custodyerr.KindOf(err))

	// the pre-existing entry must survive the failed provisioning attempt.
	vaultID, err := f.reg.GetVaultIDForOperationalDID("did:op:taken")
	require.NoError(t, err)
	require.Equal(t, "vault-existing", vaultID)
}

func TestRotateShardsSwapsDescriptorAndPatchesDIDDocument(t *testing.T) {
	ids := []string{"n1", "n2", "n3", "n4", "n5"}
	f := newFleet(t, ids)

	orc := orchestrator.New(f.vaults["n1"], f.reg, audit.New(100, nil), f.eng["n1"], clockwork.NewFakeClock())

	threshold := orchestrator.DefaultThreshold(len(ids))
	_, err := orc.ProvisionVaultAndShards(context.Background(), "did:op:rotating", "did:root:user", ids, threshold)
	require.NoError(t, err)

	before, err := f.reg.GetGroupDescriptor("did:op:rotating")
	require.NoError(t, err)

	doc := []byte(`{"id":"did:op:rotating","verificationMethod":[{"id":"did:op:rotating#keys-1","type":"Multikey","publicKeyMultibase":"zOLD"}]}`)
	require.NoError(t, f.reg.StoreDIDDocument("did:op:rotating", doc))

	newGroupID, err := orc.RotateShards(context.Background(), "did:op:rotating")
	require.NoError(t, err)
	require.NotEmpty(t, newGroupID)

	after, err := f.reg.GetGroupDescriptor("did:op:rotating")
	require.NoError(t, err)
	require.NotEqual(t, before.GroupID, after.GroupID)
	require.False(t, after.GroupPublicKey.Equal(before.GroupPublicKey))

	patched, err := f.reg.GetDIDDocument("did:op:rotating")
	require.NoError(t, err)

	var parsed struct {
		VerificationMethod []struct {
			PublicKeyMultibase string `json:"publicKeyMultibase"`
		} `json:"verificationMethod"`
	}
	require.NoError(t, json.Unmarshal(patched, &parsed))
	require.Len(t, parsed.VerificationMethod, 1)
	require.NotEqual(t, "zOLD", parsed.VerificationMethod[0].PublicKeyMultibase)
}

func TestRotateShardsFailsNotFoundWithoutExistingGroup(t *testing.T) {
	ids := []string{"n1", "n2", "n3"}
	f := newFleet(t, ids)
	orc := orchestrator.New(f.vaults["n1"], f.reg, nil, f.eng["n1"], clockwork.NewFakeClock())

	_, err := orc.RotateShards(context.Background(), "did:op:unknown")
	require.Equal(t, custodyerr.NotFound, custodyerr.KindOf(err))
}
