// Package hwenclave is a placeholder for a future hardware-enclave vault
// backend (SGX, TrustZone, Nitro). It satisfies vault.Backend so the
// tagged union in spec §4.1 has a third variant, but Seal and Unseal
// always fail with a custodyerr.Internal "not implemented" error.
package hwenclave

import "github.com/vault-custody/custody-engine/custodyerr"

type Backend struct{}

func New() *Backend { return &Backend{} }

func (b *Backend) Name() string { return "hw-enclave" }

func (b *Backend) Seal([]byte) ([]byte, error) {
	return nil, custodyerr.New(custodyerr.Internal, "hwenclave.Seal", "hardware enclave backend not implemented")
}

func (b *Backend) Unseal([]byte) ([]byte, error) {
	return nil, custodyerr.New(custodyerr.Internal, "hwenclave.Unseal", "hardware enclave backend not implemented")
}
