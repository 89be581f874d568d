// Package dkg implements the node-local DKG Engine of spec §4.4: a
// message-driven state machine running a genuine FROST-style Pedersen
// DKG over edwards25519 (frostcrypto), one instance per node with many
// concurrent sessions keyed by group_id. Grounded on
// original_source/.../dkg/dkg_engine.rs's round1/round2/finish shape and
// on the teacher's own mutex-guarded, message-driven state machine style
// in dkg/state_machine.go.
package dkg

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/vault-custody/custody-engine/audit"
	"github.com/vault-custody/custody-engine/custodyerr"
	"github.com/vault-custody/custody-engine/frostcrypto"
	"github.com/vault-custody/custody-engine/log"
	"github.com/vault-custody/custody-engine/metrics"
	"github.com/vault-custody/custody-engine/peer"
	"github.com/vault-custody/custody-engine/registry"
	"github.com/vault-custody/custody-engine/vault"
)

// State is a DKG session's position in the state machine of spec §4.4.
type State int

const (
	Initial State = iota
	Round1Sent
	Round1Complete
	Round2Sent
	Round2Complete
	Finalized
	Faulted
	Timeout
)

func (s State) String() string {
	switch s {
	case Initial:
		return "Initial"
	case Round1Sent:
		return "Round1Sent"
	case Round1Complete:
		return "Round1Complete"
	case Round2Sent:
		return "Round2Sent"
	case Round2Complete:
		return "Round2Complete"
	case Finalized:
		return "Finalized"
	case Faulted:
		return "Faulted"
	case Timeout:
		return "Timeout"
	default:
		return "Unknown"
	}
}

func (s State) terminal() bool {
	return s == Finalized || s == Faulted || s == Timeout
}

// DefaultRoundTimeout is the per-round deadline of spec §4.4.
const DefaultRoundTimeout = 30 * time.Second

// Session is one node's view of a single DKG run.
type Session struct {
	mu sync.Mutex

	groupID        string
	operationalDID string
	vaultID        string
	threshold      int
	myShardIndex   int
	shardIndexByID map[string]int
	idByShardIndex map[int]string

	participant *frostcrypto.Participant
	round1      map[int]*frostcrypto.Round1Package
	round2      map[int]*frostcrypto.Round2Package

	round1Broadcast bool
	state           State
	deadline        time.Time
}

func (s *Session) memberCount() int { return len(s.shardIndexByID) }

// Engine is a node's local DKG driver, holding every session it
// participates in and enforcing the single-session-per-DID Busy rule of
// spec §5.
type Engine struct {
	nodeID       string
	directory    peer.Directory
	vaultStore   *vault.Store
	registry     *registry.Registry
	auditLog     *audit.Log
	clock        clockwork.Clock
	roundTimeout time.Duration
	logger       log.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	busyDIDs map[string]struct{}
}

// New constructs an Engine for the node identified by nodeID.
func New(nodeID string, directory peer.Directory, vaultStore *vault.Store, reg *registry.Registry, auditLog *audit.Log, clock clockwork.Clock) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{
		nodeID:       nodeID,
		directory:    directory,
		vaultStore:   vaultStore,
		registry:     reg,
		auditLog:     auditLog,
		clock:        clock,
		roundTimeout: DefaultRoundTimeout,
		logger:       log.DefaultLogger().Named("dkg"),
		sessions:     make(map[string]*Session),
		busyDIDs:     make(map[string]struct{}),
	}
}

func canonicalOrder(participantIDs []string) []string {
	out := append([]string(nil), participantIDs...)
	sort.Strings(out)
	return out
}

func indexMembers(sorted []string) (map[string]int, map[int]string) {
	byID := make(map[string]int, len(sorted))
	byIndex := make(map[int]string, len(sorted))
	for i, id := range sorted {
		byID[id] = i
		byIndex[i] = id
	}
	return byID, byIndex
}

// StartSession mints a fresh group and drives round 1 from this node as
// initiator, per spec §4.4 step 1.
func (e *Engine) StartSession(ctx context.Context, opDID, vaultID string, threshold int, participantIDs []string) (string, error) {
	if threshold < 1 || threshold > len(participantIDs) {
		return "", custodyerr.Newf(custodyerr.InvalidArgument, "dkg.StartSession", "threshold %d invalid for %d participants", threshold, len(participantIDs))
	}

	if err := e.markBusy(opDID); err != nil {
		return "", err
	}

	sorted := canonicalOrder(participantIDs)
	byID, byIndex := indexMembers(sorted)
	myShardIndex, ok := byID[e.nodeID]
	if !ok {
		e.clearBusy(opDID)
		return "", custodyerr.Newf(custodyerr.InvalidArgument, "dkg.StartSession", "node %q is not a participant", e.nodeID)
	}

	groupID := uuid.NewString()
	participant := frostcrypto.NewParticipant(myShardIndex, threshold, len(sorted), groupID)

	sess := &Session{
		groupID:        groupID,
		operationalDID: opDID,
		vaultID:        vaultID,
		threshold:      threshold,
		myShardIndex:   myShardIndex,
		shardIndexByID: byID,
		idByShardIndex: byIndex,
		participant:    participant,
		round1:         map[int]*frostcrypto.Round1Package{myShardIndex: participant.Round1()},
		round2:         make(map[int]*frostcrypto.Round2Package),
		state:          Round1Sent,
		deadline:       e.clock.Now().Add(e.roundTimeout),
	}

	e.mu.Lock()
	e.sessions[groupID] = sess
	e.mu.Unlock()

	metrics.DKGSessionsStarted.Inc()

	params := peer.SessionParams{
		GroupID:        groupID,
		OperationalDID: opDID,
		VaultID:        vaultID,
		Threshold:      threshold,
		ParticipantIDs: sorted,
	}
	myPkg := sess.round1[myShardIndex]
	for _, id := range sorted {
		if id == e.nodeID {
			continue
		}
		ch, err := e.directory.Channel(id)
		if err != nil {
			e.recordError(groupID, "failed to resolve channel for "+id+": "+err.Error())
			continue
		}
		if err := ch.SendRound1(ctx, params, e.nodeID, myPkg); err != nil {
			e.recordError(groupID, "round-1 send to "+id+" failed: "+err.Error())
		}
	}

	return groupID, nil
}

// HandleRound1 implements peer.DKGHandler: receive a round-1 package,
// lazily creating local session state on first contact.
func (e *Engine) HandleRound1(ctx context.Context, params peer.SessionParams, from string, pkg *frostcrypto.Round1Package) error {
	sess, isNew, err := e.sessionFor(params)
	if err != nil {
		return err
	}
	if isNew {
		metrics.DKGSessionsStarted.Inc()
		// A peer learning of this session for the first time must still
		// broadcast its own round-1 contribution to everyone else: only
		// the initiator's package arrives unprompted.
		e.broadcastOwnRound1(ctx, sess, params)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state.terminal() {
		return nil
	}
	if sess.state != Initial && sess.state != Round1Sent {
		// Cross-round application of a round-1 message is rejected, per
		// spec §4.4's ordering rule.
		e.recordAudit(audit.EventError, sess.groupID, from, "duplicate or late round-1 package discarded")
		return nil
	}

	senderIndex, ok := sess.shardIndexByID[from]
	if !ok {
		groupID, opDID := faultSessionLocked(sess)
		defer e.onFaulted(groupID, opDID, "round-1 package from unknown participant "+from)
		return custodyerr.Newf(custodyerr.Faulted, "dkg.HandleRound1", "unknown participant %q", from)
	}
	if _, already := sess.round1[senderIndex]; already {
		e.recordAudit(audit.EventError, sess.groupID, from, "duplicate round-1 submission discarded")
		return nil
	}
	if err := frostcrypto.VerifyRound1PoK(pkg, sess.groupID); err != nil {
		groupID, opDID := faultSessionLocked(sess)
		defer e.onFaulted(groupID, opDID, "round-1 proof of knowledge failed for "+from)
		return custodyerr.Wrap(err, custodyerr.Faulted, "dkg.HandleRound1", "malformed round-1 package from "+from)
	}

	sess.round1[senderIndex] = pkg

	if sess.state == Initial {
		sess.state = Round1Sent
	}

	if len(sess.round1) == sess.memberCount() {
		sess.state = Round1Complete
		e.broadcastRound2(ctx, sess)
	}
	return nil
}

// HandleRound2 implements peer.DKGHandler: receive a round-2 share
// addressed to this node, finalizing once all are present.
func (e *Engine) HandleRound2(ctx context.Context, groupID, from string, pkg *frostcrypto.Round2Package) error {
	e.mu.Lock()
	sess, ok := e.sessions[groupID]
	e.mu.Unlock()
	if !ok {
		return custodyerr.Newf(custodyerr.NotFound, "dkg.HandleRound2", "unknown group %q", groupID)
	}

	sess.mu.Lock()
	if sess.state.terminal() {
		sess.mu.Unlock()
		return nil
	}
	if sess.state != Round1Complete && sess.state != Round2Sent && sess.state != Round2Complete {
		sess.mu.Unlock()
		e.recordAudit(audit.EventError, groupID, from, "round-2 package received out of order, discarded")
		return nil
	}

	senderIndex, ok := sess.shardIndexByID[from]
	if !ok {
		groupID, opDID := faultSessionLocked(sess)
		sess.mu.Unlock()
		e.onFaulted(groupID, opDID, "round-2 package from unknown participant "+from)
		return custodyerr.Newf(custodyerr.Faulted, "dkg.HandleRound2", "unknown participant %q", from)
	}
	if pkg.RecipientIndex != sess.myShardIndex {
		sess.mu.Unlock()
		return custodyerr.Newf(custodyerr.InvalidArgument, "dkg.HandleRound2", "round-2 package addressed to %d, not %d", pkg.RecipientIndex, sess.myShardIndex)
	}
	if _, already := sess.round2[senderIndex]; already {
		sess.mu.Unlock()
		e.recordAudit(audit.EventError, groupID, from, "duplicate round-2 submission discarded")
		return nil
	}
	senderRound1, ok := sess.round1[senderIndex]
	if !ok {
		sess.mu.Unlock()
		e.faultSession(sess, "round-2 share received before round-1 commitment from "+from)
		return custodyerr.Newf(custodyerr.Faulted, "dkg.HandleRound2", "no round-1 commitment on file for %q", from)
	}
	if err := frostcrypto.VerifyRound2Share(pkg, senderRound1); err != nil {
		sess.mu.Unlock()
		e.faultSession(sess, "round-2 share from "+from+" failed Feldman check")
		return custodyerr.Wrap(err, custodyerr.Faulted, "dkg.HandleRound2", "invalid share from "+from)
	}

	sess.round2[senderIndex] = pkg
	sess.state = Round2Complete
	ready := len(sess.round2) == sess.memberCount()
	sess.mu.Unlock()

	if ready {
		e.finalize(ctx, sess)
	}
	return nil
}

// broadcastOwnRound1 sends this node's own round-1 package to every other
// participant, used when a node first learns of a session by receiving
// someone else's package rather than by being the initiator.
func (e *Engine) broadcastOwnRound1(ctx context.Context, sess *Session, params peer.SessionParams) {
	sess.mu.Lock()
	myPkg := sess.round1[sess.myShardIndex]
	sess.mu.Unlock()

	for _, id := range params.ParticipantIDs {
		if id == e.nodeID {
			continue
		}
		ch, err := e.directory.Channel(id)
		if err != nil {
			e.recordError(sess.groupID, "failed to resolve channel for "+id+": "+err.Error())
			continue
		}
		if err := ch.SendRound1(ctx, params, e.nodeID, myPkg); err != nil {
			e.recordError(sess.groupID, "round-1 send to "+id+" failed: "+err.Error())
		}
	}
}

// broadcastRound2 sends every peer its round-2 share, called once all
// round-1 packages are collected. Caller holds sess.mu.
func (e *Engine) broadcastRound2(ctx context.Context, sess *Session) {
	sess.state = Round2Sent
	sess.deadline = e.clock.Now().Add(e.roundTimeout)
	for shardIndex, id := range sess.idByShardIndex {
		pkg := sess.participant.Round2(shardIndex)
		if id == e.nodeID {
			sess.round2[sess.myShardIndex] = pkg
			continue
		}
		ch, err := e.directory.Channel(id)
		if err != nil {
			e.recordError(sess.groupID, "failed to resolve channel for "+id+": "+err.Error())
			continue
		}
		if err := ch.SendRound2(ctx, sess.groupID, e.nodeID, pkg); err != nil {
			e.recordError(sess.groupID, "round-2 send to "+id+" failed: "+err.Error())
		}
	}
	if len(sess.round2) == sess.memberCount() {
		sess.state = Round2Complete
	}
}

// finalize combines every contribution into this node's secret share,
// seals it into the vault, and writes the group descriptor to the
// registry. Any failure rolls back the written shard, per spec §4.4.
func (e *Engine) finalize(ctx context.Context, sess *Session) {
	sess.mu.Lock()
	if sess.state.terminal() {
		sess.mu.Unlock()
		return
	}
	result, err := frostcrypto.Finalize(sess.myShardIndex, sess.round1, sess.round2)
	opDID := sess.operationalDID
	vaultID := sess.vaultID
	groupID := sess.groupID
	threshold := sess.threshold
	idByShardIndex := sess.idByShardIndex
	sess.mu.Unlock()

	if err != nil {
		e.faultSession(sess, "finalization failed: "+err.Error())
		return
	}

	shardBytes, err := result.SecretShare.MarshalBinary()
	if err != nil {
		e.faultSession(sess, "secret share marshal failed: "+err.Error())
		return
	}
	if err := e.vaultStore.AddShard(vaultID, shardBytes); err != nil {
		e.faultSession(sess, "writing shard to vault failed: "+err.Error())
		return
	}

	members := make([]registry.Member, 0, len(idByShardIndex))
	shardIndices := make([]int, 0, len(idByShardIndex))
	for idx := range idByShardIndex {
		shardIndices = append(shardIndices, idx)
	}
	sort.Ints(shardIndices)
	for _, idx := range shardIndices {
		members = append(members, registry.Member{
			NodeID:      idByShardIndex[idx],
			ShardIndex:  idx,
			PublicShare: result.PublicShareFunc(idx),
		})
	}

	descriptor := &registry.GroupDescriptor{
		GroupID:        groupID,
		Threshold:      threshold,
		ProtocolTag:    frostcrypto.ProtocolTag,
		Members:        members,
		GroupPublicKey: result.GroupPublicKey,
	}

	if err := e.registry.SetGroupDescriptor(opDID, descriptor); err != nil {
		// Roll back the shard we just wrote; the registry entry's
		// group_descriptor remains absent.
		_ = e.vaultStore.AddShard(vaultID, nil)
		e.faultSession(sess, "writing group descriptor failed: "+err.Error())
		return
	}

	sess.mu.Lock()
	sess.state = Finalized
	sess.mu.Unlock()

	metrics.DKGSessionsFinalized.WithLabelValues(Finalized.String()).Inc()
	metrics.ActiveGroupMembers.Set(float64(len(members)))
	e.recordAudit(audit.Keygen, groupID, "", "group finalized for "+opDID)
	e.clearBusy(opDID)
}

// State reports a session's current state, for tests and observability.
func (e *Engine) State(groupID string) (State, error) {
	e.mu.Lock()
	sess, ok := e.sessions[groupID]
	e.mu.Unlock()
	if !ok {
		return Initial, custodyerr.Newf(custodyerr.NotFound, "dkg.State", "unknown group %q", groupID)
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.state, nil
}

// CheckTimeouts scans every non-terminal session and faults any past its
// round deadline, per spec §4.4's 30s default timeout.
func (e *Engine) CheckTimeouts() {
	e.mu.Lock()
	sessions := make([]*Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		sessions = append(sessions, s)
	}
	e.mu.Unlock()

	now := e.clock.Now()
	for _, sess := range sessions {
		sess.mu.Lock()
		expired := !sess.state.terminal() && now.After(sess.deadline)
		opDID := sess.operationalDID
		groupID := sess.groupID
		if expired {
			sess.state = Timeout
		}
		sess.mu.Unlock()
		if expired {
			metrics.DKGSessionsFinalized.WithLabelValues(Timeout.String()).Inc()
			e.recordAudit(audit.EventError, groupID, "", "session timed out")
			e.clearBusy(opDID)
		}
	}
}

func (e *Engine) sessionFor(params peer.SessionParams) (*Session, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if sess, ok := e.sessions[params.GroupID]; ok {
		return sess, false, nil
	}

	sorted := canonicalOrder(params.ParticipantIDs)
	byID, byIndex := indexMembers(sorted)
	myShardIndex, ok := byID[e.nodeID]
	if !ok {
		return nil, false, custodyerr.Newf(custodyerr.InvalidArgument, "dkg.HandleRound1", "node %q is not a participant in group %q", e.nodeID, params.GroupID)
	}

	// A non-initiator learns of vaultID for the first time here; it
	// bootstraps its own local record if it doesn't already have one,
	// rather than requiring a separate out-of-band provisioning step.
	if _, err := e.vaultStore.LoadRecord(params.VaultID); err != nil {
		if custodyerr.KindOf(err) != custodyerr.NotFound {
			return nil, false, err
		}
		if err := e.vaultStore.StoreRecord(params.VaultID, vault.NewRecord("")); err != nil {
			return nil, false, err
		}
	}

	participant := frostcrypto.NewParticipant(myShardIndex, params.Threshold, len(sorted), params.GroupID)
	sess := &Session{
		groupID:        params.GroupID,
		operationalDID: params.OperationalDID,
		vaultID:        params.VaultID,
		threshold:      params.Threshold,
		myShardIndex:   myShardIndex,
		shardIndexByID: byID,
		idByShardIndex: byIndex,
		participant:    participant,
		round1:         map[int]*frostcrypto.Round1Package{myShardIndex: participant.Round1()},
		round2:         make(map[int]*frostcrypto.Round2Package),
		state:          Initial,
		deadline:       e.clock.Now().Add(e.roundTimeout),
	}
	e.sessions[params.GroupID] = sess
	return sess, true, nil
}

func (e *Engine) markBusy(opDID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.busyDIDs[opDID]; busy {
		return custodyerr.Newf(custodyerr.Busy, "dkg.StartSession", "a DKG session is already in flight for %q", opDID)
	}
	e.busyDIDs[opDID] = struct{}{}
	return nil
}

func (e *Engine) clearBusy(opDID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.busyDIDs, opDID)
}

// faultSession transitions sess to Faulted and records the failure. The
// caller must NOT be holding sess.mu.
func (e *Engine) faultSession(sess *Session, reason string) {
	sess.mu.Lock()
	if !sess.state.terminal() {
		sess.state = Faulted
	}
	opDID := sess.operationalDID
	groupID := sess.groupID
	sess.mu.Unlock()

	e.onFaulted(groupID, opDID, reason)
}

// faultSessionLocked is the equivalent of faultSession for a caller that
// already holds sess.mu; it only mutates state, deferring the
// lock-free bookkeeping to the caller via the returned ids.
func faultSessionLocked(sess *Session) (groupID, opDID string) {
	if !sess.state.terminal() {
		sess.state = Faulted
	}
	return sess.groupID, sess.operationalDID
}

func (e *Engine) onFaulted(groupID, opDID, reason string) {
	metrics.DKGSessionsFinalized.WithLabelValues(Faulted.String()).Inc()
	e.recordAudit(audit.EventError, groupID, "", reason)
	e.clearBusy(opDID)
}

func (e *Engine) recordError(groupID, message string) {
	e.recordAudit(audit.EventError, groupID, "", message)
}

func (e *Engine) recordAudit(kind audit.EventType, groupID, participant, message string) {
	if e.auditLog == nil {
		return
	}
	e.auditLog.LogEvent(audit.Event{Kind: kind, SessionID: groupID, Message: message})
	_ = participant
}
