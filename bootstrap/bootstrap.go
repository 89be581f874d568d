// Package bootstrap resolves local node identity and the operational
// peer set at process start, supplemented from
// original_source/.../bootstrap.rs and discover.rs. Unlike the original,
// it performs no DNS resolution of its own: peer discovery is delegated
// entirely to an injected peer.Directory, per spec §1's explicit
// networking non-goal. hostname resolution has no idiomatic third-party
// replacement anywhere in the pack, so it uses the standard library's
// os.Hostname, the same call the original wraps the "hostname" crate
// around.
package bootstrap

import (
	"os"
	"sort"

	"github.com/vault-custody/custody-engine/config"
	"github.com/vault-custody/custody-engine/custodyerr"
	"github.com/vault-custody/custody-engine/peer"
)

// NodeContext is the resolved identity and peer set a daemon process
// wires its engines against, analogous to the original's NodeBootstrap.
type NodeContext struct {
	LocalNodeID string
	BindAddress string
	PeerNodes   []string
}

// Bootstrap resolves the local node id from the OS hostname and the
// operational peer set (every other peer known to directory, in
// canonical sorted order) from cfg and an already-populated directory.
func Bootstrap(cfg config.Config, directory peer.Directory) (*NodeContext, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, custodyerr.Wrap(err, custodyerr.Internal, "bootstrap.Bootstrap", "resolving local hostname")
	}

	all := directory.Peers()
	peers := make([]string, 0, len(all))
	for _, id := range all {
		if id == hostname {
			continue
		}
		peers = append(peers, id)
	}
	sort.Strings(peers)

	return &NodeContext{
		LocalNodeID: hostname,
		BindAddress: cfg.BindAddress,
		PeerNodes:   peers,
	}, nil
}

// BootstrapAs is Bootstrap with an explicitly supplied node id, for
// environments (tests, multi-node in-process demos) where the OS
// hostname does not distinguish peers.
func BootstrapAs(nodeID string, cfg config.Config, directory peer.Directory) *NodeContext {
	all := directory.Peers()
	peers := make([]string, 0, len(all))
	for _, id := range all {
		if id == nodeID {
			continue
		}
		peers = append(peers, id)
	}
	sort.Strings(peers)

	return &NodeContext{
		LocalNodeID: nodeID,
		BindAddress: cfg.BindAddress,
		PeerNodes:   peers,
	}
}
