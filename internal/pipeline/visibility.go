package pipeline

import (
	"github.com/bgpview/client/internal/view"
	"go.uber.org/zap"
)

// FullFeedPredicate decides whether a peer is considered a full-feed peer
// for a given address family. Full-feed determination belongs to the BGP
// view container, an external collaborator; this consumer only consumes
// the decision.
type FullFeedPredicate func(peer view.PeerID, afi view.AFI) bool

// VisibilityConsumer computes, for each received view, the full-feed peer
// id sets per address family and the full-feed peer-ASN count for IPv4,
// then marks chain_state.visibility_computed. It must run before the
// per-geo-visibility consumer (geoconsumer.Consumer), which asserts this flag.
type VisibilityConsumer struct {
	fullFeed FullFeedPredicate
	logger   *zap.Logger
}

func NewVisibilityConsumer(fullFeed FullFeedPredicate) *VisibilityConsumer {
	return &VisibilityConsumer{fullFeed: fullFeed}
}

func (c *VisibilityConsumer) ID() ConsumerID { return ConsumerVisibility }

func (c *VisibilityConsumer) Init(logger *zap.Logger) error {
	c.logger = logger
	return nil
}

func (c *VisibilityConsumer) Destroy() {}

func (c *VisibilityConsumer) ProcessView(_ uint8, v view.View, state *ChainState) error {
	peerSeen := make(map[view.AFI]map[view.PeerID]struct{})

	v.Tuples(func(t view.Tuple) bool {
		afi := t.Prefix.Version
		if !c.fullFeed(t.Peer, afi) {
			return true
		}
		set, ok := peerSeen[afi]
		if !ok {
			set = make(map[view.PeerID]struct{})
			peerSeen[afi] = set
		}
		set[t.Peer] = struct{}{}
		return true
	})

	state.FullFeedPeerIDs = peerSeen
	// The global full-feed ASN count for IPv4 is the denominator the
	// geo-visibility consumer's threshold ratios are measured against;
	// peers are identified 1:1 with their session ASN in this model, so
	// the distinct full-feed peer id count for v4 is that denominator.
	state.FullFeedASNCount = len(peerSeen[view.AFIv4])
	state.VisibilityComputed = true
	return nil
}
