package frostcrypto

import (
	"crypto/sha512"
	"fmt"

	"github.com/drand/kyber/share"
	"github.com/drand/kyber/util/random"

	"github.com/vault-custody/custody-engine/custodyerr"
)

// Round1Package is the broadcast message of DKG round 1: a Feldman/Pedersen
// commitment to a degree-(t-1) polynomial, plus a Schnorr proof of
// knowledge of its constant term (the participant's long-term contribution
// to the group secret). The PoK is bound to groupTag and the sender's
// shard index so a captured package cannot be replayed into a different
// session or attributed to a different participant (preventing a simple
// rogue-key substitution).
type Round1Package struct {
	SenderIndex int
	Commits     []Point
	PoKR        Point
	PoKZ        Scalar
}

// Round2Package is the per-recipient message of DKG round 2: the sender's
// polynomial evaluated at the recipient's x-coordinate.
type Round2Package struct {
	SenderIndex    int
	RecipientIndex int
	Share          Scalar
}

// Participant drives one node's side of a single DKG session.
type Participant struct {
	Index     int // canonical, zero-based shard_index
	Threshold int
	N         int
	GroupTag  string

	priPoly *share.PriPoly
}

// NewParticipant samples a fresh degree-(threshold-1) private polynomial
// for this participant.
func NewParticipant(index, threshold, n int, groupTag string) *Participant {
	return &Participant{
		Index:     index,
		Threshold: threshold,
		N:         n,
		GroupTag:  groupTag,
		priPoly:   share.NewPriPoly(Suite, threshold, nil, random.New()),
	}
}

// Round1 produces this participant's round-1 broadcast package.
func (p *Participant) Round1() *Round1Package {
	pub := p.priPoly.Commit(nil)
	_, commits := pub.Info()

	k := Suite.Scalar().Pick(random.New())
	r := Suite.Point().Mul(k, nil)
	h := pokChallenge(p.GroupTag, p.Index, r)
	secret := p.priPoly.Secret()
	z := Suite.Scalar().Add(k, Suite.Scalar().Mul(h, secret))

	return &Round1Package{
		SenderIndex: p.Index,
		Commits:     commits,
		PoKR:        r,
		PoKZ:        z,
	}
}

// Round2 produces the private share this participant sends to recipient,
// evaluating its round-1 polynomial at the recipient's x-coordinate.
func (p *Participant) Round2(recipientShardIndex int) *Round2Package {
	x := ParticipantX(recipientShardIndex)
	s := p.priPoly.Eval(x)
	return &Round2Package{
		SenderIndex:    p.Index,
		RecipientIndex: recipientShardIndex,
		Share:          s.V,
	}
}

// VerifyRound1PoK checks the Schnorr proof of knowledge carried by a
// round-1 package, binding the check to the session's groupTag.
func VerifyRound1PoK(pkg *Round1Package, groupTag string) error {
	if len(pkg.Commits) == 0 {
		return custodyerr.New(custodyerr.CryptoFailure, "frostcrypto.VerifyRound1PoK", "empty commitment list")
	}
	h := pokChallenge(groupTag, pkg.SenderIndex, pkg.PoKR)
	// S = z*G must equal R + h*A, where A is the commitment's constant term.
	lhs := Suite.Point().Mul(pkg.PoKZ, nil)
	rhs := Suite.Point().Add(pkg.PoKR, Suite.Point().Mul(h, pkg.Commits[0]))
	if !lhs.Equal(rhs) {
		return custodyerr.New(custodyerr.CryptoFailure, "frostcrypto.VerifyRound1PoK", "proof of knowledge does not verify")
	}
	return nil
}

// VerifyRound2Share checks that a round-2 share is consistent with the
// sender's round-1 Feldman commitments (the standard VSS check).
func VerifyRound2Share(pkg *Round2Package, senderRound1 *Round1Package) error {
	pub := share.NewPubPoly(Suite, Suite.Point().Base(), senderRound1.Commits)
	x := ParticipantX(pkg.RecipientIndex)
	expected := pub.Eval(x)
	got := Suite.Point().Mul(pkg.Share, nil)
	if !got.Equal(expected.V) {
		return custodyerr.New(custodyerr.CryptoFailure, "frostcrypto.VerifyRound2Share", "share inconsistent with sender's commitments")
	}
	return nil
}

// FinalizeResult is the output of combining every participant's
// contribution into this node's share of the group secret.
type FinalizeResult struct {
	SecretShare     Scalar
	GroupPublicKey  Point
	PublicShareFunc func(shardIndex int) Point
}

// Finalize combines the round-2 shares addressed to myShardIndex with the
// round-1 commitments of every participant (including the caller's own) to
// produce the caller's secret share and the aggregated group descriptor
// data.
func Finalize(myShardIndex int, round1s map[int]*Round1Package, round2s map[int]*Round2Package) (*FinalizeResult, error) {
	if len(round1s) == 0 {
		return nil, custodyerr.New(custodyerr.Incomplete, "frostcrypto.Finalize", "no round-1 packages available")
	}

	secretShare := Suite.Scalar().Zero()
	groupPublic := Suite.Point().Null()
	pubPolys := make(map[int]*share.PubPoly, len(round1s))

	for sender, r1 := range round1s {
		r2, ok := round2s[sender]
		if !ok {
			return nil, custodyerr.Newf(custodyerr.Incomplete, "frostcrypto.Finalize", "missing round-2 share from participant %d", sender)
		}
		if r2.RecipientIndex != myShardIndex {
			return nil, custodyerr.Newf(custodyerr.Internal, "frostcrypto.Finalize", "round-2 share from %d addressed to %d, not %d", sender, r2.RecipientIndex, myShardIndex)
		}
		secretShare = Suite.Scalar().Add(secretShare, r2.Share)
		groupPublic = Suite.Point().Add(groupPublic, r1.Commits[0])
		pubPolys[sender] = share.NewPubPoly(Suite, Suite.Point().Base(), r1.Commits)
	}

	publicShareFunc := func(shardIndex int) Point {
		x := ParticipantX(shardIndex)
		acc := Suite.Point().Null()
		for _, pp := range pubPolys {
			acc = Suite.Point().Add(acc, pp.Eval(x).V)
		}
		return acc
	}

	return &FinalizeResult{
		SecretShare:     secretShare,
		GroupPublicKey:  groupPublic,
		PublicShareFunc: publicShareFunc,
	}, nil
}

// pokChallenge computes the Fiat-Shamir challenge for the round-1 proof of
// knowledge, binding it to the session's group tag and the sender's index
// so the same polynomial cannot be reused across sessions or misattributed
// to another participant.
func pokChallenge(groupTag string, senderIndex int, r Point) Scalar {
	h := sha512.New()
	_, _ = r.MarshalTo(h)
	_, _ = fmt.Fprintf(h, "%s|%d", groupTag, senderIndex)
	return Suite.Scalar().SetBytes(h.Sum(nil))
}
