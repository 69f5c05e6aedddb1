package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/bgpview/client/internal/view"
	"go.uber.org/zap"
)

type recordingConsumer struct {
	id     ConsumerID
	calls  *[]ConsumerID
	fail   bool
	assert func(*ChainState) error
}

func (c *recordingConsumer) ID() ConsumerID          { return c.id }
func (c *recordingConsumer) Init(*zap.Logger) error  { return nil }
func (c *recordingConsumer) Destroy()                {}
func (c *recordingConsumer) ProcessView(_ uint8, _ view.View, state *ChainState) error {
	*c.calls = append(*c.calls, c.id)
	if c.assert != nil {
		if err := c.assert(state); err != nil {
			return err
		}
	}
	if c.fail {
		return errors.New("boom")
	}
	return nil
}

func TestManager_RunsConsumersInOrder(t *testing.T) {
	var calls []ConsumerID
	m := NewManager(zap.NewNop(), 24, "test")
	if err := m.Register(&recordingConsumer{id: ConsumerVisibility, calls: &calls}); err != nil {
		t.Fatal(err)
	}
	if err := m.Register(&recordingConsumer{id: ConsumerPerGeoVisibility, calls: &calls}); err != nil {
		t.Fatal(err)
	}

	mv := view.NewMemView(time.Now(), nil)
	if err := m.ProcessView(0, mv); err != nil {
		t.Fatalf("ProcessView: %v", err)
	}

	if len(calls) != 2 || calls[0] != ConsumerVisibility || calls[1] != ConsumerPerGeoVisibility {
		t.Fatalf("unexpected call order: %v", calls)
	}
}

func TestManager_AbortsChainOnError(t *testing.T) {
	var calls []ConsumerID
	m := NewManager(zap.NewNop(), 24, "test")
	if err := m.Register(&recordingConsumer{id: ConsumerVisibility, calls: &calls, fail: true}); err != nil {
		t.Fatal(err)
	}
	if err := m.Register(&recordingConsumer{id: ConsumerPerGeoVisibility, calls: &calls}); err != nil {
		t.Fatal(err)
	}

	mv := view.NewMemView(time.Now(), nil)
	if err := m.ProcessView(0, mv); err == nil {
		t.Fatal("expected error")
	}

	if len(calls) != 1 {
		t.Fatalf("expected chain to abort after first consumer, got calls: %v", calls)
	}
}

func TestVisibilityConsumer_ComputesFullFeedSets(t *testing.T) {
	fullFeed := func(p view.PeerID, afi view.AFI) bool {
		return afi == view.AFIv4 && (p == 1 || p == 2)
	}
	c := NewVisibilityConsumer(fullFeed)
	if err := c.Init(zap.NewNop()); err != nil {
		t.Fatal(err)
	}

	tuples := []view.Tuple{
		{Prefix: view.PrefixKey{Version: view.AFIv4, MaskLen: 24}, Peer: 1},
		{Prefix: view.PrefixKey{Version: view.AFIv4, MaskLen: 24}, Peer: 2},
		{Prefix: view.PrefixKey{Version: view.AFIv4, MaskLen: 24}, Peer: 3}, // not full-feed
		{Prefix: view.PrefixKey{Version: view.AFIv6, MaskLen: 48}, Peer: 1},
	}
	mv := view.NewMemView(time.Now(), tuples)
	state := newChainState(24, "test")

	if err := c.ProcessView(0, mv, state); err != nil {
		t.Fatalf("ProcessView: %v", err)
	}
	if !state.VisibilityComputed {
		t.Fatal("expected VisibilityComputed = true")
	}
	if got := len(state.FullFeedPeerIDs[view.AFIv4]); got != 2 {
		t.Fatalf("expected 2 full-feed v4 peers, got %d", got)
	}
	if state.FullFeedASNCount != 2 {
		t.Fatalf("expected FullFeedASNCount = 2, got %d", state.FullFeedASNCount)
	}
	if _, ok := state.FullFeedPeerIDs[view.AFIv6]; ok {
		t.Fatal("v6 peer should not be counted as full-feed (predicate returns false for v6)")
	}
}
