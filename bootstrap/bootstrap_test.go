package bootstrap_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vault-custody/custody-engine/bootstrap"
	"github.com/vault-custody/custody-engine/config"
	"github.com/vault-custody/custody-engine/peer"
)

func TestBootstrapAsExcludesSelfFromPeerList(t *testing.T) {
	dir := peer.NewInMemoryDirectory()
	for _, id := range []string{"node-c", "node-a", "node-b"} {
		dir.Register(peer.NewInMemoryChannel(id, nil, nil))
	}

	ctx := bootstrap.BootstrapAs("node-b", config.Default(), dir)
	require.Equal(t, "node-b", ctx.LocalNodeID)
	require.Equal(t, []string{"node-a", "node-c"}, ctx.PeerNodes)
	require.Equal(t, config.Default().BindAddress, ctx.BindAddress)
}

func TestBootstrapAsWithUnknownPeerKeepsFullDirectory(t *testing.T) {
	dir := peer.NewInMemoryDirectory()
	for _, id := range []string{"node-a", "node-b"} {
		dir.Register(peer.NewInMemoryChannel(id, nil, nil))
	}

	ctx := bootstrap.BootstrapAs("node-z", config.Default(), dir)
	require.Equal(t, []string{"node-a", "node-b"}, ctx.PeerNodes)
}
