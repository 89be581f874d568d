// Package orchestrator implements the Provisioning and Rotation
// Orchestrators of spec §4.6/§4.7: the single entry points that create a
// vault, drive a DKG across the peer set, and bind the result into the
// registry, using github.com/jonboulle/clockwork for injectable
// deadlines, matching the teacher's own use of injectable clocks in its
// DKG state-machine tests.
package orchestrator

import (
	"context"
	"encoding/base64"
	"math"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/vault-custody/custody-engine/audit"
	"github.com/vault-custody/custody-engine/custodyerr"
	"github.com/vault-custody/custody-engine/dkg"
	"github.com/vault-custody/custody-engine/registry"
	"github.com/vault-custody/custody-engine/vault"
)

// Orchestrator drives provisioning and rotation from the initiating
// node's own DKG engine.
type Orchestrator struct {
	vaultStore *vault.Store
	registry   *registry.Registry
	auditLog   *audit.Log
	dkgEngine  *dkg.Engine
	clock      clockwork.Clock
}

// New constructs an Orchestrator.
func New(vaultStore *vault.Store, reg *registry.Registry, auditLog *audit.Log, dkgEngine *dkg.Engine, clock clockwork.Clock) *Orchestrator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Orchestrator{vaultStore: vaultStore, registry: reg, auditLog: auditLog, dkgEngine: dkgEngine, clock: clock}
}

// DefaultThreshold implements the quorum policy of spec §4.6: ceil(2n/3).
func DefaultThreshold(n int) int {
	return int(math.Ceil(float64(2*n) / 3))
}

// ProvisionVaultAndShards is spec §4.6's single entry point: create a
// vault, run a DKG across the eligible peer set, and register the
// resulting operational DID. Any failure after vault creation rolls back
// the vault record and registry entry.
//
// The registry entry is registered before the DKG runs (rather than
// after, as spec §4.6 lists literally) because the DKG Engine's
// finalization step writes the group descriptor onto an existing
// registry entry; registering first with an absent group_descriptor
// keeps spec §4.3's "absent group_descriptor ⇔ no DKG completed"
// invariant intact while letting Finalize target a real entry.
func (o *Orchestrator) ProvisionVaultAndShards(ctx context.Context, opDID, rootDID string, participantIDs []string, threshold int) (groupID string, err error) {
	vaultID := uuid.NewString()
	rootHash := registry.HashRootDID(rootDID)

	if err := o.vaultStore.StoreRecord(vaultID, vault.NewRecord(rootHash)); err != nil {
		return "", err
	}

	if err := o.registry.RegisterOperationalDID(opDID, rootDID, vaultID, nil); err != nil {
		o.vaultStore.Delete(vaultID)
		return "", err
	}

	groupID, err = o.dkgEngine.StartSession(ctx, opDID, vaultID, threshold, participantIDs)
	if err != nil {
		o.rollback(vaultID, opDID)
		return "", err
	}

	state, err := o.dkgEngine.State(groupID)
	if err != nil || state != dkg.Finalized {
		o.rollback(vaultID, opDID)
		return "", custodyerr.Newf(custodyerr.Faulted, "orchestrator.ProvisionVaultAndShards", "dkg session %q did not finalize (state=%v)", groupID, state)
	}

	o.recordAudit(audit.Keygen, groupID, "provisioned "+opDID+" with vault "+vaultID)
	return groupID, nil
}

func (o *Orchestrator) rollback(vaultID, opDID string) {
	o.vaultStore.Delete(vaultID)
	_ = o.registry.RevokeOperationalDID(opDID)
}

// RotateShards is spec §4.7's rotate_shards: run a fresh DKG over the
// same participant set, atomically swap the registry's group descriptor
// (performed by the DKG Engine's finalize step, which also overwrites the
// vault's sealed shard in place), and patch the DID document's
// publicKeyMultibase to the new group public key.
//
// In-flight signing sessions bound to the old group_id are not preserved
// transiently: because the shard is overwritten in place rather than
// versioned, a signing round already in progress against the old shard
// will fail CryptoFailure rather than complete, a simplification of
// spec §4.7's "permitted transiently" option documented in DESIGN.md.
func (o *Orchestrator) RotateShards(ctx context.Context, opDID string) (newGroupID string, err error) {
	descriptor, err := o.registry.GetGroupDescriptor(opDID)
	if err != nil {
		return "", err
	}
	vaultID, err := o.registry.GetVaultIDForOperationalDID(opDID)
	if err != nil {
		return "", err
	}

	participantIDs := make([]string, 0, len(descriptor.Members))
	for _, m := range descriptor.Members {
		participantIDs = append(participantIDs, m.NodeID)
	}

	groupID, err := o.dkgEngine.StartSession(ctx, opDID, vaultID, descriptor.Threshold, participantIDs)
	if err != nil {
		return "", err
	}

	state, err := o.dkgEngine.State(groupID)
	if err != nil || state != dkg.Finalized {
		return "", custodyerr.Newf(custodyerr.Faulted, "orchestrator.RotateShards", "rotation dkg session %q did not finalize (state=%v)", groupID, state)
	}

	newDescriptor, err := o.registry.GetGroupDescriptor(opDID)
	if err != nil {
		return "", err
	}
	if err := o.patchVerificationMethod(opDID, newDescriptor); err != nil {
		return "", err
	}

	o.recordAudit(audit.DidRotation, groupID, "rotated shards for "+opDID)
	return groupID, nil
}

// patchVerificationMethod updates the first verificationMethod entry's
// publicKeyMultibase to the new group public key, preserving every other
// document field, per spec §4.7 step 4.
func (o *Orchestrator) patchVerificationMethod(opDID string, descriptor *registry.GroupDescriptor) error {
	doc, err := o.registry.GetDIDDocument(opDID)
	if err != nil {
		if custodyerr.KindOf(err) == custodyerr.NotFound {
			return nil // no document to patch
		}
		return err
	}

	keyBytes, err := descriptor.GroupPublicKey.MarshalBinary()
	if err != nil {
		return custodyerr.Wrap(err, custodyerr.Internal, "orchestrator.patchVerificationMethod", "marshaling group public key")
	}
	// A true multibase (base58btc, "z"-prefixed) encoding needs a base58
	// library outside this pack's corpus; unpadded URL-safe base64 is used
	// here as a documented stand-in, prefixed the same way.
	multibase := "z" + base64.RawURLEncoding.EncodeToString(keyBytes)

	patched, err := patchPublicKeyMultibase(doc, multibase)
	if err != nil {
		return err
	}
	return o.registry.UpdateDIDDocument(opDID, patched)
}

func (o *Orchestrator) recordAudit(kind audit.EventType, sessionID, message string) {
	if o.auditLog == nil {
		return
	}
	o.auditLog.LogEvent(audit.Event{Kind: kind, SessionID: sessionID, Message: message})
}
