package peer_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vault-custody/custody-engine/custodyerr"
	"github.com/vault-custody/custody-engine/frostcrypto"
	"github.com/vault-custody/custody-engine/peer"
)

type stubDKG struct {
	gotRound1 *frostcrypto.Round1Package
}

func (s *stubDKG) HandleRound1(_ context.Context, _ peer.SessionParams, _ string, pkg *frostcrypto.Round1Package) error {
	s.gotRound1 = pkg
	return nil
}
func (s *stubDKG) HandleRound2(context.Context, string, string, *frostcrypto.Round2Package) error {
	return nil
}

type stubSigning struct{}

func (stubSigning) GenerateNonce(context.Context, string) (*frostcrypto.Commitment, error) {
	return &frostcrypto.Commitment{}, nil
}
func (stubSigning) PartialSign(context.Context, string, *frostcrypto.SigningPackage) (frostcrypto.Scalar, error) {
	return nil, nil
}

func TestInMemoryDirectoryRoutesToRegisteredChannel(t *testing.T) {
	dkg := &stubDKG{}
	ch := peer.NewInMemoryChannel("node-1", dkg, stubSigning{})

	dir := peer.NewInMemoryDirectory()
	dir.Register(ch)

	require.Equal(t, []string{"node-1"}, dir.Peers())

	got, err := dir.Channel("node-1")
	require.NoError(t, err)

	pkg := &frostcrypto.Round1Package{SenderIndex: 1}
	params := peer.SessionParams{GroupID: "group-1", ParticipantIDs: []string{"node-1", "node-2"}}
	require.NoError(t, got.SendRound1(context.Background(), params, "node-2", pkg))
	require.Same(t, pkg, dkg.gotRound1)
}

func TestInMemoryDirectoryUnknownNodeIsNotFound(t *testing.T) {
	dir := peer.NewInMemoryDirectory()
	_, err := dir.Channel("missing")
	require.Equal(t, custodyerr.NotFound, custodyerr.KindOf(err))
}

func TestPeersPreservesRegistrationOrder(t *testing.T) {
	dir := peer.NewInMemoryDirectory()
	for _, id := range []string{"c", "a", "b"} {
		dir.Register(peer.NewInMemoryChannel(id, &stubDKG{}, stubSigning{}))
	}
	require.Equal(t, []string{"c", "a", "b"}, dir.Peers())
}
