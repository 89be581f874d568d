// Package peer abstracts the transport between custody nodes. Per spec
// §1's non-goals, no wire encoding is defined here: Channel passes
// structured Go values directly, the same way the teacher's own
// net.ProtocolClient abstracts gRPC calls behind a plain Go interface.
// InMemoryChannel/InMemoryDirectory are the only implementations in this
// module, used by tests and by cmd/custodyd's in-process demo network.
package peer

import (
	"context"
	"sync"

	"github.com/vault-custody/custody-engine/custodyerr"
	"github.com/vault-custody/custody-engine/frostcrypto"
)

// SessionParams self-describes a DKG session: every round-1 message
// carries it so a receiving node can lazily create its own session state
// on first contact, rather than requiring a separate init RPC.
type SessionParams struct {
	GroupID        string
	OperationalDID string
	VaultID        string
	Threshold      int
	// ParticipantIDs is the canonical, lexicographically sorted member
	// list; its index is the member's shard_index, per spec §4.4.
	ParticipantIDs []string
}

// DKGHandler is the subset of a node's DKG Engine reachable from the
// network: delivering round-1 and round-2 packages, per spec §4.4's
// handle_message.
type DKGHandler interface {
	HandleRound1(ctx context.Context, params SessionParams, from string, pkg *frostcrypto.Round1Package) error
	HandleRound2(ctx context.Context, groupID string, from string, pkg *frostcrypto.Round2Package) error
}

// SigningHandler is the subset of a node's vault/signing logic reachable
// from the network, per spec §4.5.
type SigningHandler interface {
	GenerateNonce(ctx context.Context, opDID string) (*frostcrypto.Commitment, error)
	PartialSign(ctx context.Context, opDID string, pkg *frostcrypto.SigningPackage) (frostcrypto.Scalar, error)
}

// Channel is a logical connection to one remote custody node.
type Channel interface {
	NodeID() string
	SendRound1(ctx context.Context, params SessionParams, from string, pkg *frostcrypto.Round1Package) error
	SendRound2(ctx context.Context, groupID, from string, pkg *frostcrypto.Round2Package) error
	GenerateNonce(ctx context.Context, opDID string) (*frostcrypto.Commitment, error)
	PartialSign(ctx context.Context, opDID string, pkg *frostcrypto.SigningPackage) (frostcrypto.Scalar, error)
}

// Directory resolves custody node ids to channels and enumerates the
// eligible peer set, per spec §4.6's "query the peer directory".
type Directory interface {
	Peers() []string
	Channel(nodeID string) (Channel, error)
}

// InMemoryChannel dispatches calls directly to a node's in-process
// handlers, skipping any wire encoding.
type InMemoryChannel struct {
	nodeID  string
	dkg     DKGHandler
	signing SigningHandler
}

// NewInMemoryChannel wraps a node's handlers as a Channel.
func NewInMemoryChannel(nodeID string, dkg DKGHandler, signing SigningHandler) *InMemoryChannel {
	return &InMemoryChannel{nodeID: nodeID, dkg: dkg, signing: signing}
}

func (c *InMemoryChannel) NodeID() string { return c.nodeID }

func (c *InMemoryChannel) SendRound1(ctx context.Context, params SessionParams, from string, pkg *frostcrypto.Round1Package) error {
	return c.dkg.HandleRound1(ctx, params, from, pkg)
}

func (c *InMemoryChannel) SendRound2(ctx context.Context, groupID, from string, pkg *frostcrypto.Round2Package) error {
	return c.dkg.HandleRound2(ctx, groupID, from, pkg)
}

func (c *InMemoryChannel) GenerateNonce(ctx context.Context, opDID string) (*frostcrypto.Commitment, error) {
	return c.signing.GenerateNonce(ctx, opDID)
}

func (c *InMemoryChannel) PartialSign(ctx context.Context, opDID string, pkg *frostcrypto.SigningPackage) (frostcrypto.Scalar, error) {
	return c.signing.PartialSign(ctx, opDID, pkg)
}

// InMemoryDirectory is a fixed registry of in-process channels, used by
// tests and the cmd/custodyd demo network.
type InMemoryDirectory struct {
	mu       sync.RWMutex
	channels map[string]Channel
	order    []string
}

// NewInMemoryDirectory constructs an empty directory.
func NewInMemoryDirectory() *InMemoryDirectory {
	return &InMemoryDirectory{channels: make(map[string]Channel)}
}

// Register adds or replaces the channel for a node id, preserving first-
// registration order for Peers().
func (d *InMemoryDirectory) Register(ch Channel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.channels[ch.NodeID()]; !exists {
		d.order = append(d.order, ch.NodeID())
	}
	d.channels[ch.NodeID()] = ch
}

// Peers lists every registered node id, in registration order.
func (d *InMemoryDirectory) Peers() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// Channel resolves nodeID to its registered channel.
func (d *InMemoryDirectory) Channel(nodeID string) (Channel, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ch, ok := d.channels[nodeID]
	if !ok {
		return nil, custodyerr.Newf(custodyerr.NotFound, "peer.Channel", "no channel registered for node %q", nodeID)
	}
	return ch, nil
}
