// Package coordinator exposes the spec §6 RPC surface as a plain Go
// interface: no wire encoding is defined here (per the transport
// non-goal), but every operation still carries a request id for logging,
// matching the teacher's own net.ProtocolClient boundary between
// transport-free business logic and whatever carries it over the wire.
package coordinator

import (
	"context"

	"github.com/google/uuid"

	"github.com/vault-custody/custody-engine/custodyerr"
	"github.com/vault-custody/custody-engine/dkg"
	"github.com/vault-custody/custody-engine/frostcrypto"
	"github.com/vault-custody/custody-engine/log"
	"github.com/vault-custody/custody-engine/orchestrator"
	"github.com/vault-custody/custody-engine/registry"
	"github.com/vault-custody/custody-engine/signing"
)

// API is the abstract RPC surface of spec §6. It has no SubmitDkgMessage
// or PartialSign method: DKG packages and partial signatures travel over
// peer.Channel instead (see FinalizeDkgSession and signing.Coordinator).
// Wire adapters (gRPC,
// HTTP, whatever a deployment chooses) would sit in front of a Service,
// translating wire messages into these calls; none exist in this module,
// per spec §1's transport non-goal.
type API interface {
	ProvisionVaultAndShards(ctx context.Context, opDID, rootDID string, participantIDs []string, threshold int) (vaultID, groupID string, groupPublicKey []byte, err error)
	RotateShards(ctx context.Context, opDID string) (newGroupID string, newGroupPublicKey []byte, err error)
	SignMessage(ctx context.Context, opDID string, message []byte) (signature []byte, err error)
	StartDkgSession(ctx context.Context, opDID string, threshold int, participantIDs []string) (groupID string, err error)
	FinalizeDkgSession(ctx context.Context, groupID string) (shardBytes []byte, err error)
	// GenerateNonce returns a structured Commitment rather than
	// commitment_bytes: per spec §1's transport non-goal there is no wire
	// encoding in this module for frostcrypto's own types.
	GenerateNonce(ctx context.Context, opDID string) (*frostcrypto.Commitment, error)
	RegisterOperationalDid(ctx context.Context, opDID, rootDID, vaultID string, didDocument []byte) error
	GetDidDocument(ctx context.Context, opDID string) ([]byte, error)
	StoreDidDocument(ctx context.Context, opDID string, didDocument []byte) error
	GetMpcGroupDescriptor(ctx context.Context, opDID string) (*registry.GroupDescriptor, error)
}

// Service is the single type cmd/custodyd wires up to implement API: it
// has no state of its own beyond the components it delegates to, each of
// which already carries the locking and Busy-guard semantics its domain
// requires.
type Service struct {
	orchestrator *orchestrator.Orchestrator
	dkgEngine    *dkg.Engine
	coordinator  *signing.Coordinator
	signer       *signing.NodeSigner
	registry     *registry.Registry
	logger       log.Logger
}

var _ API = (*Service)(nil)

// New constructs a Service bound to one node's local components. signer is
// that node's own NodeSigner, used to serve GenerateNonce locally (the
// signing round itself fans out to the whole cohort via coordinator).
func New(orc *orchestrator.Orchestrator, eng *dkg.Engine, sc *signing.Coordinator, signer *signing.NodeSigner, reg *registry.Registry, logger log.Logger) *Service {
	if logger == nil {
		logger = log.DefaultLogger()
	}
	return &Service{orchestrator: orc, dkgEngine: eng, coordinator: sc, signer: signer, registry: reg, logger: logger.Named("coordinator")}
}

// requestLogger returns a logger scoped to a fresh request id, per spec
// §6's "every operation carries a request id for logging."
func (s *Service) requestLogger(op string) (log.Logger, string) {
	reqID := uuid.NewString()
	return log.WithRequestID(s.logger, reqID).With("op", op), reqID
}

func (s *Service) ProvisionVaultAndShards(ctx context.Context, opDID, rootDID string, participantIDs []string, threshold int) (string, string, []byte, error) {
	logger, _ := s.requestLogger("ProvisionVaultAndShards")
	logger.Infow("provisioning", "op_did", opDID)

	groupID, err := s.orchestrator.ProvisionVaultAndShards(ctx, opDID, rootDID, participantIDs, threshold)
	if err != nil {
		logger.Errorw("provisioning failed", "error", err)
		return "", "", nil, err
	}
	vaultID, err := s.registry.GetVaultIDForOperationalDID(opDID)
	if err != nil {
		return "", "", nil, err
	}
	descriptor, err := s.registry.GetGroupDescriptor(opDID)
	if err != nil {
		return "", "", nil, err
	}
	keyBytes, err := descriptor.GroupPublicKey.MarshalBinary()
	if err != nil {
		return "", "", nil, custodyerr.Wrap(err, custodyerr.Internal, "coordinator.ProvisionVaultAndShards", "marshal group public key")
	}
	return vaultID, groupID, keyBytes, nil
}

func (s *Service) RotateShards(ctx context.Context, opDID string) (string, []byte, error) {
	logger, _ := s.requestLogger("RotateShards")
	logger.Infow("rotating", "op_did", opDID)

	newGroupID, err := s.orchestrator.RotateShards(ctx, opDID)
	if err != nil {
		logger.Errorw("rotation failed", "error", err)
		return "", nil, err
	}
	descriptor, err := s.registry.GetGroupDescriptor(opDID)
	if err != nil {
		return "", nil, err
	}
	keyBytes, err := descriptor.GroupPublicKey.MarshalBinary()
	if err != nil {
		return "", nil, custodyerr.Wrap(err, custodyerr.Internal, "coordinator.RotateShards", "marshal group public key")
	}
	return newGroupID, keyBytes, nil
}

func (s *Service) SignMessage(ctx context.Context, opDID string, message []byte) ([]byte, error) {
	logger, _ := s.requestLogger("SignMessage")
	logger.Infow("signing", "op_did", opDID)

	sig, err := s.coordinator.Sign(ctx, opDID, message)
	if err != nil {
		logger.Errorw("signing failed", "error", err)
		return nil, err
	}
	return sig, nil
}

func (s *Service) StartDkgSession(ctx context.Context, opDID string, threshold int, participantIDs []string) (string, error) {
	logger, _ := s.requestLogger("StartDkgSession")
	logger.Infow("starting dkg session", "op_did", opDID, "threshold", threshold)

	vaultID, err := s.registry.GetVaultIDForOperationalDID(opDID)
	if err != nil {
		return "", err
	}
	return s.dkgEngine.StartSession(ctx, opDID, vaultID, threshold, participantIDs)
}

// FinalizeDkgSession reports the outcome of a session already driven to
// completion by StartDkgSession: this engine's transport delivers every
// round-1/round-2 package synchronously (peer.Channel has no async
// submit queue), so by the time a caller can name groupID the session has
// already reached a terminal state. There is deliberately no separate
// SubmitDkgMessage on this Service: message delivery is the peer
// transport's job, not the RPC surface's. The returned shard bytes are
// always nil: the node's shard stays sealed in its vault and is not
// exported through this call.
func (s *Service) FinalizeDkgSession(ctx context.Context, groupID string) ([]byte, error) {
	logger, _ := s.requestLogger("FinalizeDkgSession")

	state, err := s.dkgEngine.State(groupID)
	if err != nil {
		return nil, err
	}
	if state != dkg.Finalized {
		return nil, custodyerr.Newf(custodyerr.Incomplete, "coordinator.FinalizeDkgSession", "session %q is not finalized (state=%v)", groupID, state)
	}
	logger.Infow("session finalized", "group_id", groupID)
	return nil, nil
}

// GenerateNonce serves this node's own share of the commitment round;
// signing.Coordinator.Sign reaches every cohort member's NodeSigner
// through peer.Channel rather than through this method, which is just the
// local entry point.
func (s *Service) GenerateNonce(ctx context.Context, opDID string) (*frostcrypto.Commitment, error) {
	return s.signer.GenerateNonce(ctx, opDID)
}

func (s *Service) RegisterOperationalDid(ctx context.Context, opDID, rootDID, vaultID string, didDocument []byte) error {
	logger, _ := s.requestLogger("RegisterOperationalDid")
	logger.Infow("registering operational did", "op_did", opDID)
	return s.registry.RegisterOperationalDID(opDID, rootDID, vaultID, didDocument)
}

func (s *Service) GetDidDocument(ctx context.Context, opDID string) ([]byte, error) {
	return s.registry.GetDIDDocument(opDID)
}

func (s *Service) StoreDidDocument(ctx context.Context, opDID string, didDocument []byte) error {
	return s.registry.StoreDIDDocument(opDID, didDocument)
}

func (s *Service) GetMpcGroupDescriptor(ctx context.Context, opDID string) (*registry.GroupDescriptor, error) {
	return s.registry.GetGroupDescriptor(opDID)
}
