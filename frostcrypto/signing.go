package frostcrypto

import (
	"crypto/sha512"
	"fmt"
	"sort"

	"github.com/drand/kyber/sign/schnorr"
	"github.com/drand/kyber/util/random"
	"github.com/zeebo/blake3"

	"github.com/vault-custody/custody-engine/custodyerr"
)

// NoncePair is a FROST hiding/binding secret nonce pair (its public
// counterpart is a Commitment), generated once per signing attempt and
// consumed exactly once.
type NoncePair struct {
	ShardIndex int
	Hiding     Scalar
	Binding    Scalar
}

// Commitment is the public half of a NoncePair, safe to broadcast.
type Commitment struct {
	ShardIndex int
	HidingPub  Point
	BindingPub Point
}

// GenerateNoncePair samples a fresh hiding/binding nonce pair for shardIndex.
func GenerateNoncePair(shardIndex int) (*NoncePair, *Commitment) {
	d := Suite.Scalar().Pick(random.New())
	e := Suite.Scalar().Pick(random.New())
	np := &NoncePair{ShardIndex: shardIndex, Hiding: d, Binding: e}
	c := &Commitment{
		ShardIndex: shardIndex,
		HidingPub:  Suite.Point().Mul(d, nil),
		BindingPub: Suite.Point().Mul(e, nil),
	}
	return np, c
}

// SigningPackage is the set of commitments and the message, bound together
// for the signing round. The commitments are sorted by ShardIndex so every
// cohort member derives identical binding factors.
type SigningPackage struct {
	Message     []byte
	Commitments []*Commitment
}

func NewSigningPackage(message []byte, commitments []*Commitment) *SigningPackage {
	sorted := make([]*Commitment, len(commitments))
	copy(sorted, commitments)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ShardIndex < sorted[j].ShardIndex })
	return &SigningPackage{Message: message, Commitments: sorted}
}

// bindingFactor derives rho_i = H(i || message || encode(commitments)) with
// blake3, per participant, as required by FROST to bind each nonce pair to
// the specific signing package and prevent nonce reuse across packages.
func bindingFactor(shardIndex int, pkg *SigningPackage) Scalar {
	h := blake3.New()
	_, _ = fmt.Fprintf(h, "%d|", shardIndex)
	h.Write(pkg.Message)
	for _, c := range pkg.Commitments {
		_, _ = fmt.Fprintf(h, "|%d|", c.ShardIndex)
		_, _ = c.HidingPub.MarshalTo(h)
		_, _ = c.BindingPub.MarshalTo(h)
	}
	return Suite.Scalar().SetBytes(h.Sum(nil))
}

// GroupCommitment computes R = sum_i (D_i + rho_i * E_i) over the signing
// package's commitments.
func GroupCommitment(pkg *SigningPackage) Point {
	r := Suite.Point().Null()
	for _, c := range pkg.Commitments {
		rho := bindingFactor(c.ShardIndex, pkg)
		term := Suite.Point().Add(c.HidingPub, Suite.Point().Mul(rho, c.BindingPub))
		r = Suite.Point().Add(r, term)
	}
	return r
}

// challenge computes the Schnorr/EdDSA-compatible challenge c = H(R || Y ||
// msg) using the exact hash construction of github.com/drand/kyber's
// sign/schnorr package, so the aggregate (R, z) produced by Aggregate
// verifies directly with schnorr.Verify.
func challenge(groupPublicKey, r Point, msg []byte) Scalar {
	h := sha512.New()
	_, _ = r.MarshalTo(h)
	_, _ = groupPublicKey.MarshalTo(h)
	_, _ = h.Write(msg)
	return Suite.Scalar().SetBytes(h.Sum(nil))
}

// LagrangeCoefficient computes the Lagrange basis coefficient at x=0 for
// participant myShardIndex among the given cohort (all zero-based
// shard_index values, translated internally to their Shamir x-coordinates).
func LagrangeCoefficient(myShardIndex int, cohort []int) Scalar {
	myX := ParticipantX(myShardIndex)
	num := Suite.Scalar().One()
	den := Suite.Scalar().One()
	for _, other := range cohort {
		if other == myShardIndex {
			continue
		}
		xj := Suite.Scalar().SetInt64(int64(ParticipantX(other)))
		xi := Suite.Scalar().SetInt64(int64(myX))
		num = Suite.Scalar().Mul(num, xj)
		den = Suite.Scalar().Mul(den, Suite.Scalar().Sub(xj, xi))
	}
	return Suite.Scalar().Div(num, den)
}

// PartialSign computes this participant's signature share z_i = d_i +
// rho_i*e_i + lambda_i*c*share_i, consuming the supplied nonce pair.
func PartialSign(secretShare Scalar, nonce *NoncePair, pkg *SigningPackage, groupPublicKey Point, cohort []int) Scalar {
	rho := bindingFactor(nonce.ShardIndex, pkg)
	r := GroupCommitment(pkg)
	c := challenge(groupPublicKey, r, pkg.Message)
	lambda := LagrangeCoefficient(nonce.ShardIndex, cohort)

	term := Suite.Scalar().Mul(rho, nonce.Binding)
	z := Suite.Scalar().Add(nonce.Hiding, term)
	z = Suite.Scalar().Add(z, Suite.Scalar().Mul(lambda, Suite.Scalar().Mul(c, secretShare)))
	return z
}

// VerifyPartialSignature checks an individual signature share against the
// signer's public verification share before it is folded into the
// aggregate, so a single faulty cohort member can be identified rather
// than only discovered after aggregate verification fails.
func VerifyPartialSignature(shardIndex int, z Scalar, publicShare, groupPublicKey Point, pkg *SigningPackage, cohort []int) error {
	rho := bindingFactor(shardIndex, pkg)
	var commitment *Commitment
	for _, c := range pkg.Commitments {
		if c.ShardIndex == shardIndex {
			commitment = c
			break
		}
	}
	if commitment == nil {
		return custodyerr.Newf(custodyerr.CryptoFailure, "frostcrypto.VerifyPartialSignature", "no commitment for participant %d", shardIndex)
	}
	r := GroupCommitment(pkg)
	c := challenge(groupPublicKey, r, pkg.Message)
	lambda := LagrangeCoefficient(shardIndex, cohort)

	lhs := Suite.Point().Mul(z, nil)
	rhsNonce := Suite.Point().Add(commitment.HidingPub, Suite.Point().Mul(rho, commitment.BindingPub))
	rhsShare := Suite.Point().Mul(Suite.Scalar().Mul(lambda, c), publicShare)
	rhs := Suite.Point().Add(rhsNonce, rhsShare)
	if !lhs.Equal(rhs) {
		return custodyerr.Newf(custodyerr.CryptoFailure, "frostcrypto.VerifyPartialSignature", "signature share from participant %d failed verification", shardIndex)
	}
	return nil
}

// Aggregate sums the cohort's signature shares and returns the final
// signature bytes (R || z), verifiable with
// github.com/drand/kyber/sign/schnorr.Verify against groupPublicKey.
func Aggregate(shares map[int]Scalar, pkg *SigningPackage, groupPublicKey Point) ([]byte, error) {
	if len(shares) == 0 {
		return nil, custodyerr.New(custodyerr.Incomplete, "frostcrypto.Aggregate", "no signature shares supplied")
	}
	r := GroupCommitment(pkg)
	z := Suite.Scalar().Zero()
	for _, s := range shares {
		z = Suite.Scalar().Add(z, s)
	}

	var buf []byte
	rb, err := r.MarshalBinary()
	if err != nil {
		return nil, custodyerr.Wrap(err, custodyerr.Internal, "frostcrypto.Aggregate", "marshal R")
	}
	zb, err := z.MarshalBinary()
	if err != nil {
		return nil, custodyerr.Wrap(err, custodyerr.Internal, "frostcrypto.Aggregate", "marshal z")
	}
	buf = append(buf, rb...)
	buf = append(buf, zb...)

	if err := schnorr.Verify(Suite, groupPublicKey, pkg.Message, buf); err != nil {
		return nil, custodyerr.Wrap(err, custodyerr.CryptoFailure, "frostcrypto.Aggregate", "aggregate signature failed verification")
	}
	return buf, nil
}
