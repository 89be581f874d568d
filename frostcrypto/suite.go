// Package frostcrypto implements the Ed25519/FROST-style cryptographic
// primitives used by the DKG engine and signing coordinator: polynomial
// commitments (via github.com/drand/kyber's share package), Lagrange
// coefficients at zero (computed directly in this package), nonce
// commitments, partial signatures, and aggregation. It is
// built directly on github.com/drand/kyber, the same dependency the teacher
// uses for its own (BLS) threshold scheme, retargeted to edwards25519.
package frostcrypto

import (
	"github.com/drand/kyber"
	"github.com/drand/kyber/group/edwards25519"
)

// Suite is the Ed25519 group used for every DKG and signing operation in
// this module. It is a package-level value (like the teacher's own
// key.curve) because every group descriptor in this module is pinned to a
// single protocol_tag ("frost-ed25519-dkg-v1") and therefore a single
// curve.
var Suite = edwards25519.NewBlakeSHA256Ed25519()

// ProtocolTag identifies the DKG/signing protocol carried in a
// GroupDescriptor, per spec.
const ProtocolTag = "frost-ed25519-dkg-v1"

// ParticipantX converts a canonical, zero-based shard_index into the
// Shamir/FROST x-coordinate used for polynomial evaluation. Index 0 is
// never used as an x-coordinate because f(0) is the secret itself;
// shard_index 0 therefore maps to x-coordinate 1, shard_index 1 to
// x-coordinate 2, and so on. GroupDescriptor.members keeps the spec's
// zero-based shard_index for canonical ordering and Lagrange-coefficient
// determinism; this function is the one place that translates between the
// two.
func ParticipantX(shardIndex int) int {
	return shardIndex + 1
}

// Scalar, Point and Group are re-exported for callers that want to avoid an
// explicit import of github.com/drand/kyber alongside this package.
type (
	Scalar = kyber.Scalar
	Point  = kyber.Point
	Group  = kyber.Group
)
