// Package signing implements the node-local signing handler and the
// coordinator of spec §4.5: a two-round FROST signing protocol built on
// frostcrypto, with the vault's active_nonce slot enforcing single-use
// nonces per spec §4.5's safety invariant.
package signing

import (
	"context"
	"encoding/binary"

	"github.com/vault-custody/custody-engine/custodyerr"
	"github.com/vault-custody/custody-engine/frostcrypto"
	"github.com/vault-custody/custody-engine/registry"
	"github.com/vault-custody/custody-engine/vault"
	"github.com/vault-custody/custody-engine/zeroize"
)

// NodeSigner is the per-node implementation of peer.SigningHandler: it
// draws nonces, seals them into the vault's active_nonce slot, and
// computes signature shares on request.
type NodeSigner struct {
	nodeID     string
	registry   *registry.Registry
	vaultStore *vault.Store
}

// NewNodeSigner constructs a NodeSigner for the given node id.
func NewNodeSigner(nodeID string, reg *registry.Registry, vaultStore *vault.Store) *NodeSigner {
	return &NodeSigner{nodeID: nodeID, registry: reg, vaultStore: vaultStore}
}

func (n *NodeSigner) lookup(opDID string) (vaultID string, descriptor *registry.GroupDescriptor, shardIndex int, err error) {
	vaultID, err = n.registry.GetVaultIDForOperationalDID(opDID)
	if err != nil {
		return "", nil, 0, err
	}
	descriptor, err = n.registry.GetGroupDescriptor(opDID)
	if err != nil {
		return "", nil, 0, err
	}
	for _, m := range descriptor.Members {
		if m.NodeID == n.nodeID {
			return vaultID, descriptor, m.ShardIndex, nil
		}
	}
	return "", nil, 0, custodyerr.Newf(custodyerr.NotFound, "signing.lookup", "node %q is not a member of %q's group", n.nodeID, opDID)
}

// GenerateNonce draws a fresh nonce pair, seals its secret half into the
// vault's active_nonce slot, and returns the public commitment.
func (n *NodeSigner) GenerateNonce(ctx context.Context, opDID string) (*frostcrypto.Commitment, error) {
	vaultID, _, shardIndex, err := n.lookup(opDID)
	if err != nil {
		return nil, err
	}

	nonce, commitment := frostcrypto.GenerateNoncePair(shardIndex)
	encoded, err := encodeNonce(nonce)
	if err != nil {
		return nil, custodyerr.Wrap(err, custodyerr.Internal, "signing.GenerateNonce", "encoding nonce")
	}
	defer encoded.Close()
	if err := n.vaultStore.SetActiveNonce(vaultID, encoded.Bytes()); err != nil {
		return nil, err
	}
	return commitment, nil
}

// PartialSign loads this node's shard and active_nonce, computes its
// signature share, and clears the active_nonce regardless of outcome.
func (n *NodeSigner) PartialSign(ctx context.Context, opDID string, pkg *frostcrypto.SigningPackage) (frostcrypto.Scalar, error) {
	vaultID, descriptor, shardIndex, err := n.lookup(opDID)
	if err != nil {
		return nil, err
	}

	encodedNonce, err := n.vaultStore.TakeActiveNonce(vaultID)
	if err != nil {
		// No active nonce means generate_nonce was never called, or was
		// already consumed: refuse per spec §4.5's ordering guarantee.
		return nil, custodyerr.Wrap(err, custodyerr.Busy, "signing.PartialSign", "no active nonce for this vault")
	}
	defer encodedNonce.Close()
	nonce, err := decodeNonce(encodedNonce.Bytes(), shardIndex)
	if err != nil {
		return nil, custodyerr.Wrap(err, custodyerr.Internal, "signing.PartialSign", "decoding nonce")
	}

	record, err := n.vaultStore.LoadRecord(vaultID)
	if err != nil {
		return nil, err
	}
	defer record.Close()
	secretShare := frostcrypto.Suite.Scalar()
	if err := secretShare.UnmarshalBinary(record.MPCShard.Bytes()); err != nil {
		return nil, custodyerr.Wrap(err, custodyerr.CryptoFailure, "signing.PartialSign", "unmarshaling shard")
	}

	cohort := make([]int, 0, len(pkg.Commitments))
	for _, c := range pkg.Commitments {
		cohort = append(cohort, c.ShardIndex)
	}

	z := frostcrypto.PartialSign(secretShare, nonce, pkg, descriptor.GroupPublicKey, cohort)
	return z, nil
}

func encodeNonce(n *frostcrypto.NoncePair) (*zeroize.Bytes, error) {
	hiding, err := n.Hiding.MarshalBinary()
	if err != nil {
		return nil, err
	}
	binding, err := n.Binding.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 4, 4+len(hiding)+len(binding))
	binary.BigEndian.PutUint32(out, uint32(n.ShardIndex))
	out = append(out, hiding...)
	out = append(out, binding...)
	return zeroize.New(out), nil
}

func decodeNonce(encoded []byte, expectedShardIndex int) (*frostcrypto.NoncePair, error) {
	if len(encoded) < 4 {
		return nil, custodyerr.New(custodyerr.Internal, "signing.decodeNonce", "truncated nonce")
	}
	shardIndex := int(binary.BigEndian.Uint32(encoded[:4]))
	if shardIndex != expectedShardIndex {
		return nil, custodyerr.Newf(custodyerr.Internal, "signing.decodeNonce", "nonce shard index %d does not match %d", shardIndex, expectedShardIndex)
	}
	rest := encoded[4:]
	half := len(rest) / 2
	hiding := frostcrypto.Suite.Scalar()
	if err := hiding.UnmarshalBinary(rest[:half]); err != nil {
		return nil, err
	}
	binding := frostcrypto.Suite.Scalar()
	if err := binding.UnmarshalBinary(rest[half:]); err != nil {
		return nil, err
	}
	return &frostcrypto.NoncePair{ShardIndex: shardIndex, Hiding: hiding, Binding: binding}, nil
}
