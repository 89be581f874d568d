package vault

import "github.com/vault-custody/custody-engine/zeroize"

// VCRecord is a verifiable-credential blob stored for an external consumer;
// opaque to the core beyond its id, type convention and revoked flag.
// Grounded on original_source/.../vault/mod.rs's VcRecord.
type VCRecord struct {
	ID      string `json:"vc_id"`
	JSON    string `json:"vc_json"`
	Revoked bool   `json:"is_revoked"`
}

// Record is the plaintext shape of a VaultRecord, per spec §3. It never
// leaves the vault boundary except as an ephemeral, caller-owned copy
// returned from LoadRecord/mutators. The four secret fields are carried as
// zeroize.Bytes, per spec §9's "every in-memory secret must be wiped on
// drop, not just on the happy path" requirement: a caller holding a Record
// is expected to Close() these once it has consumed them, the same
// discipline simenclave.Backend already applies to its AEAD key.
type Record struct {
	RootDIDHash     string               `json:"root_did_hash"`
	OperationalDIDs []string             `json:"op_dids"`
	MPCShard        *zeroize.Bytes       `json:"mpc_shard,omitempty"`
	GroupMetadata   []byte               `json:"group_metadata,omitempty"`
	ActiveNonce     *zeroize.Bytes       `json:"active_nonce,omitempty"`
	PublicKeys      []string             `json:"public_keys"`
	BBSPrivateKey   *zeroize.Bytes       `json:"bbs_private_key,omitempty"`
	BBSPublicKey    *zeroize.Bytes       `json:"bbs_public_key,omitempty"`
	VCs             map[string]*VCRecord `json:"vcs"`
}

// NewRecord returns an empty record bound to rootDIDHash.
func NewRecord(rootDIDHash string) *Record {
	return &Record{
		RootDIDHash: rootDIDHash,
		VCs:         make(map[string]*VCRecord),
	}
}

// Close wipes every secret field this record holds. Callers that obtained a
// Record from LoadRecord must call Close once they are done reading it.
func (r *Record) Close() {
	r.MPCShard.Close()
	r.ActiveNonce.Close()
	r.BBSPrivateKey.Close()
	r.BBSPublicKey.Close()
}

// Clone returns a deep-enough copy for safe caller mutation without
// aliasing the vault's own storage.
func (r *Record) Clone() *Record {
	cp := *r
	cp.OperationalDIDs = append([]string(nil), r.OperationalDIDs...)
	cp.PublicKeys = append([]string(nil), r.PublicKeys...)
	cp.GroupMetadata = append([]byte(nil), r.GroupMetadata...)
	cp.MPCShard = cloneSecret(r.MPCShard)
	cp.ActiveNonce = cloneSecret(r.ActiveNonce)
	cp.BBSPrivateKey = cloneSecret(r.BBSPrivateKey)
	cp.BBSPublicKey = cloneSecret(r.BBSPublicKey)
	cp.VCs = make(map[string]*VCRecord, len(r.VCs))
	for k, v := range r.VCs {
		vc := *v
		cp.VCs[k] = &vc
	}
	return &cp
}

func cloneSecret(z *zeroize.Bytes) *zeroize.Bytes {
	if z == nil || z.Len() == 0 {
		return nil
	}
	return zeroize.Clone(z.Bytes())
}
