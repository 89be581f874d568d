// Package memory implements the plaintext, test-only vault backend: no
// encryption, just pass-through bytes. Grounded on
// original_source/.../vault/backend.rs's MemoryVaultBackend.
package memory

// Backend is the plaintext vault.Backend; intended for tests only.
type Backend struct{}

func New() *Backend { return &Backend{} }

func (b *Backend) Name() string { return "memory" }

func (b *Backend) Seal(plaintext []byte) ([]byte, error) {
	cp := make([]byte, len(plaintext))
	copy(cp, plaintext)
	return cp, nil
}

func (b *Backend) Unseal(sealed []byte) ([]byte, error) {
	cp := make([]byte, len(sealed))
	copy(cp, sealed)
	return cp, nil
}
