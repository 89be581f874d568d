package signing

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/vault-custody/custody-engine/audit"
	"github.com/vault-custody/custody-engine/custodyerr"
	"github.com/vault-custody/custody-engine/frostcrypto"
	"github.com/vault-custody/custody-engine/metrics"
	"github.com/vault-custody/custody-engine/peer"
	"github.com/vault-custody/custody-engine/registry"
)

// Coordinator drives the two-round signing protocol of spec §4.5 against
// a cohort of `threshold` members, choosing cohort members by lowest
// shard_index and expanding to others on probe failure. It enforces the
// single-signing-session-per-operational_did rule of spec §5, mirroring
// dkg.Engine's busyDIDs/markBusy/clearBusy pattern.
type Coordinator struct {
	registry  *registry.Registry
	directory peer.Directory
	auditLog  *audit.Log

	mu      sync.Mutex
	busyDID map[string]struct{}
}

// New constructs a Coordinator.
func New(reg *registry.Registry, directory peer.Directory, auditLog *audit.Log) *Coordinator {
	return &Coordinator{registry: reg, directory: directory, auditLog: auditLog, busyDID: make(map[string]struct{})}
}

func (c *Coordinator) markBusy(opDID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.busyDID[opDID]; busy {
		return custodyerr.Newf(custodyerr.Busy, "signing.Sign", "a signing session is already in flight for %q", opDID)
	}
	c.busyDID[opDID] = struct{}{}
	return nil
}

func (c *Coordinator) clearBusy(opDID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.busyDID, opDID)
}

// candidate pairs a group member with its channel, in shard_index order.
type candidate struct {
	member registry.Member
	ch     peer.Channel
}

// Sign produces a full signature over message on behalf of opDID, per
// spec §4.5's five-step algorithm.
func (c *Coordinator) Sign(ctx context.Context, opDID string, message []byte) ([]byte, error) {
	if err := c.markBusy(opDID); err != nil {
		return nil, err
	}
	defer c.clearBusy(opDID)

	metrics.SigningSessionsStarted.Inc()

	descriptor, err := c.registry.GetGroupDescriptor(opDID)
	if err != nil {
		metrics.SigningSessionsResolved.WithLabelValues("not_found").Inc()
		return nil, err
	}

	candidates := make([]candidate, 0, len(descriptor.Members))
	for _, m := range descriptor.Members {
		ch, err := c.directory.Channel(m.NodeID)
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{member: m, ch: ch})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].member.ShardIndex < candidates[j].member.ShardIndex
	})

	commitments, chosen, err := c.collectCommitments(ctx, opDID, candidates, descriptor.Threshold)
	if err != nil {
		metrics.SigningSessionsResolved.WithLabelValues("incomplete").Inc()
		return nil, err
	}

	pkg := frostcrypto.NewSigningPackage(message, commitments)

	shares, err := c.collectPartialSignatures(ctx, opDID, chosen, pkg, descriptor)
	if err != nil {
		metrics.SigningSessionsResolved.WithLabelValues("error").Inc()
		return nil, err
	}

	c.recordAudit(audit.Aggregation, opDID, nil, "aggregating partial signatures")
	sig, err := frostcrypto.Aggregate(shares, pkg, descriptor.GroupPublicKey)
	if err != nil {
		metrics.SigningSessionsResolved.WithLabelValues("aggregation_failed").Inc()
		c.recordAudit(audit.EventError, opDID, nil, "aggregation failed: "+err.Error())
		return nil, custodyerr.Wrap(err, custodyerr.Faulted, "signing.Sign", "aggregate signature failed verification")
	}

	metrics.SigningSessionsResolved.WithLabelValues("success").Inc()
	c.recordAudit(audit.Verification, opDID, nil, "signature verified against group public key")
	return sig, nil
}

// collectCommitments runs the commitment round: the lowest-shard_index
// `threshold` members first, expanding to others if a probe fails.
func (c *Coordinator) collectCommitments(ctx context.Context, opDID string, candidates []candidate, threshold int) ([]*frostcrypto.Commitment, []candidate, error) {
	var commitments []*frostcrypto.Commitment
	var chosen []candidate
	var errs *multierror.Error

	for _, cand := range candidates {
		if len(commitments) >= threshold {
			break
		}
		commitment, err := cand.ch.GenerateNonce(ctx, opDID)
		if err != nil {
			errs = multierror.Append(errs, err)
			c.recordAudit(audit.EventError, opDID, shardIndexPtr(cand.member.ShardIndex), "commitment probe failed: "+err.Error())
			continue
		}
		commitments = append(commitments, commitment)
		chosen = append(chosen, cand)
	}

	if len(commitments) < threshold {
		return nil, nil, custodyerr.Newf(custodyerr.Incomplete, "signing.collectCommitments", "only %d of %d required commitments available: %v", len(commitments), threshold, errs.ErrorOrNil())
	}
	return commitments, chosen, nil
}

// collectPartialSignatures runs the signing round and verifies each share
// individually before it is folded into the aggregate.
func (c *Coordinator) collectPartialSignatures(ctx context.Context, opDID string, chosen []candidate, pkg *frostcrypto.SigningPackage, descriptor *registry.GroupDescriptor) (map[int]frostcrypto.Scalar, error) {
	shares := make(map[int]frostcrypto.Scalar, len(chosen))
	cohort := make([]int, 0, len(chosen))
	for _, cand := range chosen {
		cohort = append(cohort, cand.member.ShardIndex)
	}

	for _, cand := range chosen {
		z, err := cand.ch.PartialSign(ctx, opDID, pkg)
		if err != nil {
			c.recordAudit(audit.EventError, opDID, shardIndexPtr(cand.member.ShardIndex), "partial signature failed: "+err.Error())
			return nil, custodyerr.Wrap(err, custodyerr.CryptoFailure, "signing.collectPartialSignatures", fmt.Sprintf("partial signature from %s failed", cand.member.NodeID))
		}
		if err := frostcrypto.VerifyPartialSignature(cand.member.ShardIndex, z, cand.member.PublicShare, descriptor.GroupPublicKey, pkg, cohort); err != nil {
			c.recordAudit(audit.EventError, opDID, shardIndexPtr(cand.member.ShardIndex), "partial signature verification failed: "+err.Error())
			return nil, custodyerr.Wrap(err, custodyerr.CryptoFailure, "signing.collectPartialSignatures", fmt.Sprintf("partial signature from %s failed verification", cand.member.NodeID))
		}
		shares[cand.member.ShardIndex] = z
		c.recordAudit(audit.Signing, opDID, shardIndexPtr(cand.member.ShardIndex), "partial signature accepted from "+cand.member.NodeID)
	}
	return shares, nil
}

// shardIndexPtr narrows a shard index to the uint8 ParticipantID carried
// on audit events; cohorts are always well under 256 members.
func shardIndexPtr(shardIndex int) *uint8 {
	id := uint8(shardIndex)
	return &id
}

func (c *Coordinator) recordAudit(kind audit.EventType, sessionID string, participant *uint8, message string) {
	if c.auditLog == nil {
		return
	}
	c.auditLog.LogEvent(audit.Event{Kind: kind, SessionID: sessionID, ParticipantID: participant, Message: message})
}
