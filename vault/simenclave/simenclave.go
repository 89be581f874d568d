// Package simenclave implements the simulated-trusted-enclave vault
// backend: AES-256-GCM with an ephemeral key that never leaves process
// memory unzeroed, grounded on
// original_source/.../vault/backend/simulated.rs's SimulatedTEEBackend.
package simenclave

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/vault-custody/custody-engine/custodyerr"
	"github.com/vault-custody/custody-engine/zeroize"
)

const nonceSize = 12

// Backend seals records with AES-256-GCM under a key derived once at
// construction time via HKDF over fresh crypto/rand entropy. The sealed
// layout is nonce(12) || ciphertext || tag(16), per spec §6.
type Backend struct {
	key  *zeroize.Bytes
	aead cipher.AEAD
}

// New generates a fresh ephemeral 256-bit key (simulating what a real
// enclave would hold in sealed memory) and constructs the AES-256-GCM AEAD.
func New() (*Backend, error) {
	seed := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, seed); err != nil {
		return nil, custodyerr.Wrap(err, custodyerr.Internal, "simenclave.New", "reading entropy")
	}
	kdf := hkdf.New(sha256.New, seed, nil, []byte("custody-engine/sim-enclave/v1"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, custodyerr.Wrap(err, custodyerr.Internal, "simenclave.New", "deriving key")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, custodyerr.Wrap(err, custodyerr.Internal, "simenclave.New", "constructing AES cipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, custodyerr.Wrap(err, custodyerr.Internal, "simenclave.New", "constructing GCM")
	}

	return &Backend{key: zeroize.New(key), aead: aead}, nil
}

func (b *Backend) Name() string { return "sim-enclave" }

// Seal draws a fresh 96-bit nonce for every call, per spec §4.1's
// nonce-reuse prohibition.
func (b *Backend) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, custodyerr.Wrap(err, custodyerr.Internal, "simenclave.Seal", "generating nonce")
	}
	sealed := b.aead.Seal(nil, nonce, plaintext, nil)
	out := make([]byte, 0, len(nonce)+len(sealed))
	out = append(out, nonce...)
	out = append(out, sealed...)
	return out, nil
}

func (b *Backend) Unseal(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize {
		return nil, custodyerr.New(custodyerr.CryptoFailure, "simenclave.Unseal", "sealed blob shorter than nonce")
	}
	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := b.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, custodyerr.Wrap(err, custodyerr.CryptoFailure, "simenclave.Unseal", "authentication failed")
	}
	return plaintext, nil
}

// Close zeroizes the backend's key. Callers that discard a Backend should
// call Close so the key does not linger until GC runs the finalizer.
func (b *Backend) Close() error {
	return b.key.Close()
}
