package vault_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vault-custody/custody-engine/custodyerr"
	"github.com/vault-custody/custody-engine/vault"
	"github.com/vault-custody/custody-engine/vault/memory"
	"github.com/vault-custody/custody-engine/vault/simenclave"
)

func TestStoreRecordLoadRecordRoundTrips(t *testing.T) {
	for _, backendName := range []string{"memory", "sim-enclave"} {
		t.Run(backendName, func(t *testing.T) {
			s := newStore(t, backendName)
			rec := vault.NewRecord("roothash:deadbeef")
			rec.PublicKeys = []string{"pk1"}
			require.NoError(t, s.StoreRecord("vault-1", rec))

			loaded, err := s.LoadRecord("vault-1")
			require.NoError(t, err)
			require.Equal(t, rec.RootDIDHash, loaded.RootDIDHash)
			require.Equal(t, rec.PublicKeys, loaded.PublicKeys)
		})
	}
}

func TestLoadRecordMissingReturnsNotFound(t *testing.T) {
	s := newStore(t, "memory")
	_, err := s.LoadRecord("missing")
	require.Equal(t, custodyerr.NotFound, custodyerr.KindOf(err))
}

func TestActiveNonceSingleUseInvariant(t *testing.T) {
	s := newStore(t, "memory")
	require.NoError(t, s.StoreRecord("v1", vault.NewRecord("hash")))

	require.NoError(t, s.SetActiveNonce("v1", []byte("nonce-1")))
	err := s.SetActiveNonce("v1", []byte("nonce-2"))
	require.Equal(t, custodyerr.Busy, custodyerr.KindOf(err))

	taken, err := s.TakeActiveNonce("v1")
	require.NoError(t, err)
	require.Equal(t, []byte("nonce-1"), taken.Bytes())
	taken.Close()

	_, err = s.TakeActiveNonce("v1")
	require.Equal(t, custodyerr.NotFound, custodyerr.KindOf(err))
}

func TestVCLifecycle(t *testing.T) {
	s := newStore(t, "memory")
	require.NoError(t, s.StoreRecord("v1", vault.NewRecord("hash")))

	require.NoError(t, s.AddVC("v1", "vc-1", `{"type":["VerifiableCredential","Root"]}`))
	err := s.AddVC("v1", "vc-1", `{}`)
	require.Equal(t, custodyerr.AlreadyExists, custodyerr.KindOf(err))

	got, err := s.GetVCByType("v1", "Root")
	require.NoError(t, err)
	require.Contains(t, got, "Root")

	require.NoError(t, s.RevokeVC("v1", "vc-1"))
	_, err = s.GetVC("v1", "vc-1")
	require.Equal(t, custodyerr.NotFound, custodyerr.KindOf(err))

	require.NoError(t, s.DeleteVC("v1", "vc-1"))
	err = s.DeleteVC("v1", "vc-1")
	require.Equal(t, custodyerr.NotFound, custodyerr.KindOf(err))
}

func TestSealedBlobDoesNotRoundTripAcrossBackendInstances(t *testing.T) {
	s1 := newStore(t, "sim-enclave")
	require.NoError(t, s1.StoreRecord("v1", vault.NewRecord("hash")))

	s2 := newStore(t, "sim-enclave")
	require.NoError(t, s2.StoreRecord("v1", vault.NewRecord("hash")))
	_, err := s2.LoadRecord("v1")
	require.NoError(t, err, "each store seals and loads its own blob correctly")

	b1, err := simenclave.New()
	require.NoError(t, err)
	b2, err := simenclave.New()
	require.NoError(t, err)
	sealed, err := b1.Seal([]byte("secret"))
	require.NoError(t, err)
	_, err = b2.Unseal(sealed)
	require.Equal(t, custodyerr.CryptoFailure, custodyerr.KindOf(err), "a blob sealed by one instance must not unseal under another")
}

func newStore(t *testing.T, backend string) *vault.Store {
	t.Helper()
	switch backend {
	case "memory":
		return vault.New(memory.New())
	case "sim-enclave":
		b, err := simenclave.New()
		require.NoError(t, err)
		return vault.New(b)
	default:
		t.Fatalf("unknown backend %q", backend)
		return nil
	}
}
