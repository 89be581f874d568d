// Package vault implements the sealed, content-agnostic record store
// described in spec §4.1: it encrypts and stores per-DID records (shard,
// nonces, issuer keys, public-key set, credential blobs) behind a
// pluggable Backend, and never lets plaintext cross its boundary except as
// an ephemeral copy returned to a caller.
package vault

import (
	"encoding/json"
	"sync"

	"github.com/vault-custody/custody-engine/custodyerr"
	"github.com/vault-custody/custody-engine/metrics"
)

// Store is a vault instance: one Backend plus the table of sealed blobs it
// guards. The zero value is not usable; construct with New.
//
// The backend-selection singleton described in spec §9 ("Global mutable
// state") is implemented both ways: package-level Init/ResetForTest for
// processes that want one ambient vault (mirroring the teacher's own
// OnceLock-guarded global), and New for callers (tests,
// orchestrators) that prefer an explicit, passed-by-reference instance.
type Store struct {
	mu      sync.RWMutex
	backend Backend
	blobs   map[string][]byte
}

// New constructs a Store around an already-built Backend.
func New(backend Backend) *Store {
	return &Store{backend: backend, blobs: make(map[string][]byte)}
}

var (
	initOnce     sync.Once
	defaultStore *Store
)

// Init establishes the process-wide default Store exactly once. A second
// call returns AlreadyExists without changing the existing store, matching
// spec §4.1 ("a second initialization fails with AlreadyInitialized").
func Init(backend Backend) error {
	called := false
	initOnce.Do(func() {
		defaultStore = New(backend)
		called = true
	})
	if !called {
		return custodyerr.New(custodyerr.AlreadyExists, "vault.Init", "vault already initialized")
	}
	return nil
}

// Default returns the process-wide Store established by Init.
func Default() (*Store, error) {
	if defaultStore == nil {
		return nil, custodyerr.New(custodyerr.Internal, "vault.Default", "vault not initialized")
	}
	return defaultStore, nil
}

// ResetForTest clears the package-level singleton so tests can call Init
// again. It must only be called from tests.
func ResetForTest() {
	initOnce = sync.Once{}
	defaultStore = nil
}

// StoreRecord seals and persists record under vaultID, replacing any
// existing blob for that id.
func (s *Store) StoreRecord(vaultID string, record *Record) error {
	plaintext, err := json.Marshal(record)
	if err != nil {
		return custodyerr.Wrap(err, custodyerr.Internal, "vault.StoreRecord", "marshal record")
	}
	sealed, err := s.backend.Seal(plaintext)
	if err != nil {
		metrics.VaultOperations.WithLabelValues("store_record", "error").Inc()
		return custodyerr.Wrap(err, custodyerr.CryptoFailure, "vault.StoreRecord", "seal")
	}

	s.mu.Lock()
	s.blobs[vaultID] = sealed
	s.mu.Unlock()

	metrics.VaultOperations.WithLabelValues("store_record", "ok").Inc()
	return nil
}

// LoadRecord unseals and deserializes the record for vaultID. The returned
// Record is an ephemeral, caller-owned copy; callers must not assume it is
// shared with the vault's internal state.
func (s *Store) LoadRecord(vaultID string) (*Record, error) {
	s.mu.RLock()
	sealed, ok := s.blobs[vaultID]
	s.mu.RUnlock()
	if !ok {
		metrics.VaultOperations.WithLabelValues("load_record", "not_found").Inc()
		return nil, custodyerr.Newf(custodyerr.NotFound, "vault.LoadRecord", "no record for vault id %q", vaultID)
	}

	plaintext, err := s.backend.Unseal(sealed)
	if err != nil {
		metrics.VaultOperations.WithLabelValues("load_record", "error").Inc()
		return nil, custodyerr.Wrap(err, custodyerr.CryptoFailure, "vault.LoadRecord", "unseal")
	}

	var record Record
	if err := json.Unmarshal(plaintext, &record); err != nil {
		return nil, custodyerr.Wrap(err, custodyerr.Internal, "vault.LoadRecord", "unmarshal record")
	}
	metrics.VaultOperations.WithLabelValues("load_record", "ok").Inc()
	return &record, nil
}

// Delete removes vaultID's sealed blob entirely. Used by rollback paths.
func (s *Store) Delete(vaultID string) {
	s.mu.Lock()
	delete(s.blobs, vaultID)
	s.mu.Unlock()
}

// mutate is the read-modify-write helper every convenience mutator below
// uses, so each is atomic per vault id: the whole unseal-fn-reseal
// sequence runs under a single write-lock acquisition rather than
// composing LoadRecord and StoreRecord's independent locks, which would
// leave a window between them for a second mutate call to observe the
// same pre-mutation state (e.g. two concurrent SetActiveNonce calls both
// seeing no active nonce and both proceeding).
func (s *Store) mutate(vaultID string, fn func(r *Record) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sealed, ok := s.blobs[vaultID]
	if !ok {
		metrics.VaultOperations.WithLabelValues("load_record", "not_found").Inc()
		return custodyerr.Newf(custodyerr.NotFound, "vault.mutate", "no record for vault id %q", vaultID)
	}
	plaintext, err := s.backend.Unseal(sealed)
	if err != nil {
		metrics.VaultOperations.WithLabelValues("load_record", "error").Inc()
		return custodyerr.Wrap(err, custodyerr.CryptoFailure, "vault.mutate", "unseal")
	}
	var record Record
	if err := json.Unmarshal(plaintext, &record); err != nil {
		return custodyerr.Wrap(err, custodyerr.Internal, "vault.mutate", "unmarshal record")
	}
	metrics.VaultOperations.WithLabelValues("load_record", "ok").Inc()

	if err := fn(&record); err != nil {
		return err
	}

	newPlaintext, err := json.Marshal(&record)
	if err != nil {
		return custodyerr.Wrap(err, custodyerr.Internal, "vault.mutate", "marshal record")
	}
	sealedOut, err := s.backend.Seal(newPlaintext)
	if err != nil {
		metrics.VaultOperations.WithLabelValues("store_record", "error").Inc()
		return custodyerr.Wrap(err, custodyerr.CryptoFailure, "vault.mutate", "seal")
	}
	s.blobs[vaultID] = sealedOut
	metrics.VaultOperations.WithLabelValues("store_record", "ok").Inc()
	return nil
}
