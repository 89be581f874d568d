// Package issuer implements the issuer registry supplemented from
// original_source/.../registry/issuer_registry.rs: a separate directory
// of credential-issuer DIDs, distinct from the operational-DID registry,
// tracking which DIDs are authorized to sign verifiable credentials and
// where their BBS+ key material lives in the vault.
package issuer

import (
	"sync"

	"github.com/vault-custody/custody-engine/custodyerr"
)

// Record is one registered issuer, per original_source's IssuerRecord.
// PublicKey holds the raw BBS+ public key bytes rather than a typed bbs
// key, since no BBS+ library appears anywhere in the pack; the vault
// package's GetBBSPublicKey/SetBBSPublicKey mutators already treat BBS keys as
// opaque byte blobs, and this registry follows the same convention.
type Record struct {
	DID       string
	Active    bool
	VaultRef  string
	PublicKey []byte
}

func (r Record) clone() Record {
	cp := r
	cp.PublicKey = append([]byte(nil), r.PublicKey...)
	return cp
}

// Registry is the issuer directory. A single sync.RWMutex guards it, the
// same convention registry.Registry uses for the operational-DID
// directory.
type Registry struct {
	mu      sync.RWMutex
	issuers map[string]Record
}

// New constructs an empty issuer Registry.
func New() *Registry {
	return &Registry{issuers: make(map[string]Record)}
}

// RegisterIssuer registers did as an active issuer bound to vaultRef and
// publicKey, replacing any prior record for the same did.
func (r *Registry) RegisterIssuer(did, vaultRef string, publicKey []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.issuers[did] = Record{
		DID:       did,
		Active:    true,
		VaultRef:  vaultRef,
		PublicKey: append([]byte(nil), publicKey...),
	}
}

// IsAuthorizedIssuer reports whether did is registered and active.
func (r *Registry) IsAuthorizedIssuer(did string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.issuers[did]
	return ok && rec.Active
}

// GetPublicKey returns the issuer's BBS+ public key.
func (r *Registry) GetPublicKey(did string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.issuers[did]
	if !ok {
		return nil, notFound(did)
	}
	return append([]byte(nil), rec.PublicKey...), nil
}

// GetVaultRef returns the vault id holding the issuer's private key
// material.
func (r *Registry) GetVaultRef(did string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.issuers[did]
	if !ok {
		return "", notFound(did)
	}
	return rec.VaultRef, nil
}

// GetIssuerRecord returns a copy of the full record for did.
func (r *Registry) GetIssuerRecord(did string) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.issuers[did]
	if !ok {
		return Record{}, notFound(did)
	}
	return rec.clone(), nil
}

// UpdateIssuer replaces newPublicKey and/or newVaultRef when non-nil,
// leaving the rest of the record untouched.
func (r *Registry) UpdateIssuer(did string, newPublicKey []byte, newVaultRef *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.issuers[did]
	if !ok {
		return notFound(did)
	}
	if newPublicKey != nil {
		rec.PublicKey = append([]byte(nil), newPublicKey...)
	}
	if newVaultRef != nil {
		rec.VaultRef = *newVaultRef
	}
	r.issuers[did] = rec
	return nil
}

// DeactivateIssuer soft-disables did without removing its record.
func (r *Registry) DeactivateIssuer(did string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.issuers[did]
	if !ok {
		return notFound(did)
	}
	rec.Active = false
	r.issuers[did] = rec
	return nil
}

// RemoveIssuer physically deletes an issuer's record.
func (r *Registry) RemoveIssuer(did string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.issuers[did]; !ok {
		return notFound(did)
	}
	delete(r.issuers, did)
	return nil
}

func notFound(did string) error {
	return custodyerr.Newf(custodyerr.NotFound, "issuer.Registry", "issuer %q not found", did)
}
