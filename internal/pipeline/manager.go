// Package pipeline orchestrates the chain of registered per-view consumers,
// mirroring the shape of the teacher's internal/state.Pipeline (a struct
// holding ordered processing state plus a logger) but driven by one view at
// a time instead of a batch of Kafka records.
package pipeline

import (
	"fmt"

	"github.com/bgpview/client/internal/view"
	"go.uber.org/zap"
)

// ConsumerID is a dense enum identifying a registered consumer in logs and
// errors. It does not index the Manager's registry, which is a slice run in
// registration order.
type ConsumerID int

const (
	ConsumerVisibility ConsumerID = iota
	ConsumerPerGeoVisibility
	consumerIDCount
)

func (c ConsumerID) String() string {
	switch c {
	case ConsumerVisibility:
		return "visibility"
	case ConsumerPerGeoVisibility:
		return "per-geo-visibility"
	default:
		return fmt.Sprintf("consumer(%d)", int(c))
	}
}

// ChainState is the shared, mutable record of per-view derived facts that
// consumers later in the chain depend on. It is reset at the start of each
// ProcessView call.
type ChainState struct {
	// FullFeedPeerIDs holds the full-feed peer id set per address family,
	// keyed by view.AFI.
	FullFeedPeerIDs map[view.AFI]map[view.PeerID]struct{}
	// FullFeedASNCount is the global full-feed ASN count for IPv4, the
	// denominator for the geo-visibility consumer's threshold ratios.
	FullFeedASNCount int
	// MaskLenCutoff is the minimum mask length a prefix must have to be
	// considered by visibility-dependent consumers.
	MaskLenCutoff int
	// VisibilityComputed is asserted true by the per-geo-visibility
	// consumer's precondition check; set by the visibility consumer.
	VisibilityComputed bool
	MetricPrefix       string
}

func newChainState(maskLenCutoff int, metricPrefix string) *ChainState {
	return &ChainState{
		FullFeedPeerIDs: make(map[view.AFI]map[view.PeerID]struct{}),
		MaskLenCutoff:   maskLenCutoff,
		MetricPrefix:    metricPrefix,
	}
}

// Consumer is a registered chain participant. ProcessView is called once
// per received view, in registration order; a non-nil return aborts the
// remainder of the chain for that view.
type Consumer interface {
	ID() ConsumerID
	Init(logger *zap.Logger) error
	Destroy()
	ProcessView(interests uint8, v view.View, state *ChainState) error
}

// Manager owns the ordered consumer chain and per-run chain-state inputs.
type Manager struct {
	logger        *zap.Logger
	consumers     []Consumer
	maskLenCutoff int
	metricPrefix  string
}

// NewManager builds an empty chain. maskLenCutoff and metricPrefix seed
// every ChainState produced by ProcessView.
func NewManager(logger *zap.Logger, maskLenCutoff int, metricPrefix string) *Manager {
	return &Manager{
		logger:        logger,
		maskLenCutoff: maskLenCutoff,
		metricPrefix:  metricPrefix,
	}
}

// Register appends a consumer to the chain and calls its Init. Consumers
// must be registered in dependency order (visibility before
// per-geo-visibility).
func (m *Manager) Register(c Consumer) error {
	if err := c.Init(m.logger); err != nil {
		return fmt.Errorf("pipeline: init consumer %s: %w", c.ID(), err)
	}
	m.consumers = append(m.consumers, c)
	return nil
}

// Close destroys every registered consumer in reverse registration order.
func (m *Manager) Close() {
	for i := len(m.consumers) - 1; i >= 0; i-- {
		m.consumers[i].Destroy()
	}
}

// ProcessView runs v through the full consumer chain, aborting on the
// first consumer error.
func (m *Manager) ProcessView(interests uint8, v view.View) error {
	state := newChainState(m.maskLenCutoff, m.metricPrefix)
	for _, c := range m.consumers {
		if err := c.ProcessView(interests, v, state); err != nil {
			m.logger.Error("consumer chain aborted",
				zap.String("consumer", c.ID().String()),
				zap.Error(err),
			)
			return fmt.Errorf("pipeline: consumer %s: %w", c.ID(), err)
		}
	}
	return nil
}
