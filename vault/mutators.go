package vault

import (
	"strings"

	"github.com/vault-custody/custody-engine/custodyerr"
	"github.com/vault-custody/custody-engine/zeroize"
)

// AddShard seals shard into the record's mpc_shard slot, wiping any
// previous value it replaces (used both at DKG finalization and at
// rotation, so the old shard is never left live in memory after a swap).
func (s *Store) AddShard(vaultID string, shard []byte) error {
	return s.mutate(vaultID, func(r *Record) error {
		r.MPCShard.Close()
		r.MPCShard = zeroize.Clone(shard)
		return nil
	})
}

// SetGroupMetadata stores a serialized GroupDescriptor snapshot.
func (s *Store) SetGroupMetadata(vaultID string, metadata []byte) error {
	return s.mutate(vaultID, func(r *Record) error {
		r.GroupMetadata = append([]byte(nil), metadata...)
		return nil
	})
}

// SetActiveNonce installs a serialized pre-signing nonce, refusing to
// overwrite one already in flight (spec §4.5's nonce-reuse invariant).
func (s *Store) SetActiveNonce(vaultID string, nonce []byte) error {
	return s.mutate(vaultID, func(r *Record) error {
		if r.ActiveNonce.Len() > 0 {
			return custodyerr.New(custodyerr.Busy, "vault.SetActiveNonce", "an active nonce already exists for this vault")
		}
		r.ActiveNonce = zeroize.Clone(nonce)
		return nil
	})
}

// TakeActiveNonce removes and returns the active nonce, consuming it
// regardless of the caller's success or failure, per spec §4.5. The
// returned Bytes is caller-owned; the caller must Close it once the nonce
// has been decoded and used.
func (s *Store) TakeActiveNonce(vaultID string) (*zeroize.Bytes, error) {
	var nonce *zeroize.Bytes
	err := s.mutate(vaultID, func(r *Record) error {
		if r.ActiveNonce.Len() == 0 {
			return custodyerr.New(custodyerr.NotFound, "vault.TakeActiveNonce", "no active nonce for this vault")
		}
		nonce = r.ActiveNonce
		r.ActiveNonce = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	return nonce, nil
}

// ClearActiveNonce unconditionally clears any active nonce, wiping it,
// used when a signing session resolves without ever calling PartialSign
// (timeout, Incomplete, cancellation).
func (s *Store) ClearActiveNonce(vaultID string) error {
	return s.mutate(vaultID, func(r *Record) error {
		r.ActiveNonce.Close()
		r.ActiveNonce = nil
		return nil
	})
}

// AddVC records a new verifiable-credential blob, rejecting a duplicate id.
func (s *Store) AddVC(vaultID, vcID, vcJSON string) error {
	return s.mutate(vaultID, func(r *Record) error {
		if _, exists := r.VCs[vcID]; exists {
			return custodyerr.Newf(custodyerr.AlreadyExists, "vault.AddVC", "vc id %q already exists", vcID)
		}
		r.VCs[vcID] = &VCRecord{ID: vcID, JSON: vcJSON}
		return nil
	})
}

// RevokeVC sets a VC's revoked flag without deleting it.
func (s *Store) RevokeVC(vaultID, vcID string) error {
	return s.mutate(vaultID, func(r *Record) error {
		vc, ok := r.VCs[vcID]
		if !ok {
			return custodyerr.Newf(custodyerr.NotFound, "vault.RevokeVC", "vc id %q not found", vcID)
		}
		vc.Revoked = true
		return nil
	})
}

// DeleteVC permanently removes a VC.
func (s *Store) DeleteVC(vaultID, vcID string) error {
	return s.mutate(vaultID, func(r *Record) error {
		if _, ok := r.VCs[vcID]; !ok {
			return custodyerr.Newf(custodyerr.NotFound, "vault.DeleteVC", "vc id %q not found", vcID)
		}
		delete(r.VCs, vcID)
		return nil
	})
}

// GetVC returns a non-revoked VC's JSON blob.
func (s *Store) GetVC(vaultID, vcID string) (string, error) {
	r, err := s.LoadRecord(vaultID)
	if err != nil {
		return "", err
	}
	vc, ok := r.VCs[vcID]
	if !ok || vc.Revoked {
		return "", custodyerr.Newf(custodyerr.NotFound, "vault.GetVC", "vc id %q not found or revoked", vcID)
	}
	return vc.JSON, nil
}

// GetVCByType returns a non-revoked VC whose json blob contains vcType as
// a substring anywhere in the text (the blob is not parsed, so the match
// is not limited to its "type" field), after the convention in
// original_source/.../vault/mod.rs's get_vc_by_type. When several VCs
// match, which one is returned is not defined.
func (s *Store) GetVCByType(vaultID, vcType string) (string, error) {
	r, err := s.LoadRecord(vaultID)
	if err != nil {
		return "", err
	}
	for _, vc := range r.VCs {
		if vc.Revoked {
			continue
		}
		if strings.Contains(vc.JSON, vcType) {
			return vc.JSON, nil
		}
	}
	return "", custodyerr.Newf(custodyerr.NotFound, "vault.GetVCByType", "no matching vc of type %q", vcType)
}

// GetBBSPrivateKey / SetBBSPrivateKey manage issuer signing key material.
func (s *Store) GetBBSPrivateKey(vaultID string) ([]byte, error) {
	r, err := s.LoadRecord(vaultID)
	if err != nil {
		return nil, err
	}
	if r.BBSPrivateKey.Len() == 0 {
		return nil, custodyerr.New(custodyerr.NotFound, "vault.GetBBSPrivateKey", "bbs private key not set")
	}
	defer r.BBSPrivateKey.Close()
	return append([]byte(nil), r.BBSPrivateKey.Bytes()...), nil
}

func (s *Store) SetBBSPrivateKey(vaultID string, key []byte) error {
	return s.mutate(vaultID, func(r *Record) error {
		r.BBSPrivateKey.Close()
		r.BBSPrivateKey = zeroize.Clone(key)
		return nil
	})
}

func (s *Store) GetBBSPublicKey(vaultID string) ([]byte, error) {
	r, err := s.LoadRecord(vaultID)
	if err != nil {
		return nil, err
	}
	if r.BBSPublicKey.Len() == 0 {
		return nil, custodyerr.New(custodyerr.NotFound, "vault.GetBBSPublicKey", "bbs public key not set")
	}
	return append([]byte(nil), r.BBSPublicKey.Bytes()...), nil
}

func (s *Store) SetBBSPublicKey(vaultID string, key []byte) error {
	return s.mutate(vaultID, func(r *Record) error {
		r.BBSPublicKey.Close()
		r.BBSPublicKey = zeroize.Clone(key)
		return nil
	})
}

// AddPublicKey appends a new advertised verification key, supporting
// rotation (multiple live keys), rejecting an exact duplicate.
func (s *Store) AddPublicKey(vaultID, key string) error {
	return s.mutate(vaultID, func(r *Record) error {
		for _, k := range r.PublicKeys {
			if k == key {
				return custodyerr.New(custodyerr.AlreadyExists, "vault.AddPublicKey", "key already present")
			}
		}
		r.PublicKeys = append(r.PublicKeys, key)
		return nil
	})
}

// RemovePublicKey removes a previously advertised verification key.
func (s *Store) RemovePublicKey(vaultID, key string) error {
	return s.mutate(vaultID, func(r *Record) error {
		before := len(r.PublicKeys)
		out := r.PublicKeys[:0]
		for _, k := range r.PublicKeys {
			if k != key {
				out = append(out, k)
			}
		}
		r.PublicKeys = out
		if len(out) == before {
			return custodyerr.New(custodyerr.NotFound, "vault.RemovePublicKey", "key not found")
		}
		return nil
	})
}

// BindOperationalDID records that opDID is bound to this vault record,
// for when several operational DIDs share a root vault; binding an
// already-bound DID is a no-op.
func (s *Store) BindOperationalDID(vaultID, opDID string) error {
	return s.mutate(vaultID, func(r *Record) error {
		for _, d := range r.OperationalDIDs {
			if d == opDID {
				return nil
			}
		}
		r.OperationalDIDs = append(r.OperationalDIDs, opDID)
		return nil
	})
}
