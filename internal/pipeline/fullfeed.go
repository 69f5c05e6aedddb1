package pipeline

import "github.com/bgpview/client/internal/view"

// StaticFullFeedPredicate returns a FullFeedPredicate backed by a fixed set
// of peer ids, e.g. full-feed sessions known operationally ahead of time.
// Full-feed determination is the BGP view container's responsibility (an
// external collaborator per spec's non-goals); this is the simplest caller-
// supplied predicate and the one the CLI wires in by default.
func StaticFullFeedPredicate(peers map[view.PeerID]struct{}) FullFeedPredicate {
	return func(peer view.PeerID, _ view.AFI) bool {
		_, ok := peers[peer]
		return ok
	}
}
