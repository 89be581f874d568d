// Package registry implements the operational-DID registry of spec §4.3:
// the durable mapping from an externally advertised OperationalDID to its
// vault id, group descriptor, and DID document. Grounded on the teacher's
// key.Group (field layout for a threshold group descriptor) and on
// original_source/.../registry/operational_did_registry.rs (root-DID
// hashing with blake3, rotate/revoke semantics).
package registry

import (
	"sync"

	"github.com/zeebo/blake3"

	"github.com/vault-custody/custody-engine/audit"
	"github.com/vault-custody/custody-engine/custodyerr"
	"github.com/vault-custody/custody-engine/frostcrypto"
)

// Member is one participant of a finalized group, per spec §3's
// GroupDescriptor.members. PublicShare is a kyber point, hex-JSON-encoded
// via github.com/nikkolasg/hexjson wherever the descriptor is serialized
// (see boltstore.go), the same convention the teacher uses for its own
// group keys.
type Member struct {
	NodeID      string            `json:"node_id"`
	ShardIndex  int               `json:"shard_index"`
	PublicShare frostcrypto.Point `json:"public_share"`
}

// GroupDescriptor is the durable record of a finalized DKG, per spec §3.
type GroupDescriptor struct {
	GroupID        string            `json:"group_id"`
	Threshold      int               `json:"threshold"`
	ProtocolTag    string            `json:"protocol_tag"`
	Members        []Member          `json:"members"`
	GroupPublicKey frostcrypto.Point `json:"group_public_key"`
}

// Entry is a RegistryEntry per spec §3. AuditTrail is intentionally not
// embedded here: the audit log is a single bounded buffer shared across
// entries (see the audit package), not one deque per DID.
type Entry struct {
	OperationalDID  string
	RootDIDHash     string
	VaultID         string
	GroupDescriptor *GroupDescriptor
	DIDDocument     []byte
}

func (e *Entry) clone() *Entry {
	cp := *e
	if e.GroupDescriptor != nil {
		gd := *e.GroupDescriptor
		gd.Members = append([]Member(nil), e.GroupDescriptor.Members...)
		cp.GroupDescriptor = &gd
	}
	if e.DIDDocument != nil {
		cp.DIDDocument = append([]byte(nil), e.DIDDocument...)
	}
	return &cp
}

// HashRootDID computes the "roothash:"-prefixed blake3 digest of a root
// DID, the only form ever persisted, per spec §3's correlation-resistance
// invariant.
func HashRootDID(rootDID string) string {
	sum := blake3.Sum256([]byte(rootDID))
	return "roothash:" + hexEncode(sum[:])
}

const hexDigits = "0123456789abcdef"

func hexEncode(b []byte) string {
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hexDigits[v>>4]
		out[i*2+1] = hexDigits[v&0x0f]
	}
	return string(out)
}

// Registry is the operational-DID registry. A single sync.RWMutex
// enforces spec §4.3's single-writer/multi-reader model; critical
// sections never span I/O.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	audit   *audit.Log
}

// New constructs an empty Registry. auditLog may be nil, in which case
// rotation/revocation events are not recorded.
func New(auditLog *audit.Log) *Registry {
	return &Registry{
		entries: make(map[string]*Entry),
		audit:   auditLog,
	}
}

// RegisterOperationalDID binds opDID to a fresh vault, hashing rootDID
// before storage. Fails AlreadyExists if opDID is already bound.
func (r *Registry) RegisterOperationalDID(opDID, rootDID, vaultID string, didDocument []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[opDID]; exists {
		return custodyerr.Newf(custodyerr.AlreadyExists, "registry.RegisterOperationalDID", "operational did %q already registered", opDID)
	}
	r.entries[opDID] = &Entry{
		OperationalDID: opDID,
		RootDIDHash:    HashRootDID(rootDID),
		VaultID:        vaultID,
		DIDDocument:    append([]byte(nil), didDocument...),
	}
	return nil
}

// RotateOperationalDID atomically renames an entry from old to new.
func (r *Registry) RotateOperationalDID(oldDID, newDID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[oldDID]
	if !ok {
		return custodyerr.Newf(custodyerr.NotFound, "registry.RotateOperationalDID", "operational did %q not found", oldDID)
	}
	if _, exists := r.entries[newDID]; exists {
		return custodyerr.Newf(custodyerr.AlreadyExists, "registry.RotateOperationalDID", "operational did %q already registered", newDID)
	}

	entry.OperationalDID = newDID
	delete(r.entries, oldDID)
	r.entries[newDID] = entry

	r.recordAudit(audit.DidRotation, newDID, "rotated from "+oldDID)
	return nil
}

// RevokeOperationalDID removes an entry. The bound vault is left alone;
// vault lifecycle is the orchestrator's concern, per spec §4.3.
func (r *Registry) RevokeOperationalDID(opDID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[opDID]; !ok {
		return custodyerr.Newf(custodyerr.NotFound, "registry.RevokeOperationalDID", "operational did %q not found", opDID)
	}
	delete(r.entries, opDID)

	r.recordAudit(audit.DidRevocation, opDID, "revoked")
	return nil
}

// GetVaultIDForOperationalDID resolves opDID to its bound vault id.
func (r *Registry) GetVaultIDForOperationalDID(opDID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[opDID]
	if !ok {
		return "", custodyerr.Newf(custodyerr.NotFound, "registry.GetVaultIDForOperationalDID", "operational did %q not found", opDID)
	}
	return entry.VaultID, nil
}

// GetRootHashForOperationalDID returns only the hashed root DID; there is
// no API to recover the original value, per spec §4.3.
func (r *Registry) GetRootHashForOperationalDID(opDID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[opDID]
	if !ok {
		return "", custodyerr.Newf(custodyerr.NotFound, "registry.GetRootHashForOperationalDID", "operational did %q not found", opDID)
	}
	return entry.RootDIDHash, nil
}

// GetGroupDescriptor returns the descriptor bound to opDID, or NotFound if
// no DKG has completed yet for this DID (spec §4.3's absence invariant).
func (r *Registry) GetGroupDescriptor(opDID string) (*GroupDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[opDID]
	if !ok {
		return nil, custodyerr.Newf(custodyerr.NotFound, "registry.GetGroupDescriptor", "operational did %q not found", opDID)
	}
	if entry.GroupDescriptor == nil {
		return nil, custodyerr.Newf(custodyerr.NotFound, "registry.GetGroupDescriptor", "no group descriptor for %q", opDID)
	}
	return entry.clone().GroupDescriptor, nil
}

// SetGroupDescriptor installs or overwrites the descriptor for opDID,
// called by the DKG Engine on finalization, including the finalization of
// a rotation's new session.
func (r *Registry) SetGroupDescriptor(opDID string, descriptor *GroupDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[opDID]
	if !ok {
		return custodyerr.Newf(custodyerr.NotFound, "registry.SetGroupDescriptor", "operational did %q not found", opDID)
	}
	cp := *descriptor
	cp.Members = append([]Member(nil), descriptor.Members...)
	entry.GroupDescriptor = &cp
	return nil
}

// GetDIDDocument returns the stored DID document bytes, if any.
func (r *Registry) GetDIDDocument(opDID string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[opDID]
	if !ok {
		return nil, custodyerr.Newf(custodyerr.NotFound, "registry.GetDIDDocument", "operational did %q not found", opDID)
	}
	if entry.DIDDocument == nil {
		return nil, custodyerr.Newf(custodyerr.NotFound, "registry.GetDIDDocument", "no did document for %q", opDID)
	}
	return append([]byte(nil), entry.DIDDocument...), nil
}

// StoreDIDDocument installs a DID document, overwriting any prior value.
func (r *Registry) StoreDIDDocument(opDID string, document []byte) error {
	return r.UpdateDIDDocument(opDID, document)
}

// UpdateDIDDocument replaces the DID document for opDID.
func (r *Registry) UpdateDIDDocument(opDID string, document []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[opDID]
	if !ok {
		return custodyerr.Newf(custodyerr.NotFound, "registry.UpdateDIDDocument", "operational did %q not found", opDID)
	}
	entry.DIDDocument = append([]byte(nil), document...)
	return nil
}

func (r *Registry) recordAudit(kind audit.EventType, sessionID, message string) {
	if r.audit == nil {
		return
	}
	r.audit.LogEvent(audit.Event{Kind: kind, SessionID: sessionID, Message: message})
}
