// Package zeroize wraps secret byte slices so that their backing storage is
// overwritten on Close, and as a last resort from a finalizer. The
// simulated enclave's AES key and the secret fields of a vault record
// (shard, active nonce, issuer keys) are held as Bytes values; the vault's
// mutators still accept plain []byte arguments, and DKG shares travel as
// kyber scalars.
package zeroize

import (
	"encoding/base64"
	"encoding/json"
	"runtime"
)

// Bytes holds a secret byte slice and guarantees it is wiped exactly once.
type Bytes struct {
	b     []byte
	wiped bool
}

// New takes ownership of b; callers must not retain or mutate b after this
// call. The caller is responsible for eventually calling Close.
func New(b []byte) *Bytes {
	z := &Bytes{b: b}
	runtime.SetFinalizer(z, func(z *Bytes) { z.Close() })
	return z
}

// Clone copies b into a new zeroized-on-close buffer, leaving the original
// untouched.
func Clone(b []byte) *Bytes {
	cp := make([]byte, len(b))
	copy(cp, b)
	return New(cp)
}

// Bytes returns the underlying secret slice. The returned slice aliases
// internal storage and becomes invalid after Close.
func (z *Bytes) Bytes() []byte {
	if z.wiped {
		return nil
	}
	return z.b
}

// Len reports the length of the secret; it returns 0 after wiping and on a
// nil receiver.
func (z *Bytes) Len() int {
	if z == nil || z.wiped {
		return 0
	}
	return len(z.b)
}

// Close overwrites the backing array with zeroes. Safe to call more than
// once and safe to call on a nil receiver.
func (z *Bytes) Close() error {
	if z == nil || z.wiped {
		return nil
	}
	for i := range z.b {
		z.b[i] = 0
	}
	z.wiped = true
	runtime.SetFinalizer(z, nil)
	return nil
}

// MarshalJSON lets Bytes sit directly in a struct that is serialized while
// sealed inside a vault record; the secret is only ever plaintext-encoded
// behind the vault's own AEAD boundary, never written to disk unsealed.
func (z *Bytes) MarshalJSON() ([]byte, error) {
	if z == nil || z.wiped {
		return json.Marshal(nil)
	}
	return json.Marshal(base64.StdEncoding.EncodeToString(z.b))
}

// UnmarshalJSON reconstructs a Bytes from its base64 encoding, taking
// ownership of the decoded buffer.
func (z *Bytes) UnmarshalJSON(data []byte) error {
	var encoded *string
	if err := json.Unmarshal(data, &encoded); err != nil {
		return err
	}
	if encoded == nil {
		*z = Bytes{}
		return nil
	}
	decoded, err := base64.StdEncoding.DecodeString(*encoded)
	if err != nil {
		return err
	}
	z.b = decoded
	z.wiped = false
	runtime.SetFinalizer(z, func(z *Bytes) { z.Close() })
	return nil
}
