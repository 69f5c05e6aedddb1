package broker

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/bgpview/client/internal/bgverr"
	"github.com/bgpview/client/internal/transport"
	"go.uber.org/zap"
)

// State is one of the client broker's connection-lifecycle states (spec
// §4.3). Logged at Debug on every transition, grounded in the teacher's
// kafka.StateConsumer OnPartitionsAssigned/Revoked/Lost transition logging
// — this codebase's only precedent for a connection-lifecycle state
// transition.
type State int

const (
	StateConnecting State = iota
	StateReady
	StateLive
	StateDegraded
	StateReconnecting
	StateShuttingDown
	StateExited
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateReady:
		return "READY"
	case StateLive:
		return "LIVE"
	case StateDegraded:
		return "DEGRADED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateShuttingDown:
		return "SHUTTING_DOWN"
	case StateExited:
		return "EXITED"
	default:
		return "UNKNOWN"
	}
}

// MasterMsg is one message the master submits to the broker. Type ==
// transport.MsgView carries a view to publish reliably; any other type
// signals the master wants the broker to shut down (spec §4.3: "master
// sends a non-VIEW message").
type MasterMsg struct {
	Type    transport.MsgType
	Payload []transport.Frame
}

// ViewDelivery is one subscribed view relayed from the sub channel back to
// the master, interests byte decoded back into a bitmask (spec §4.3
// "Subscription relay").
type ViewDelivery struct {
	Interests transport.Interests
	Payload   []transport.Frame
}

var errReconnect = errors.New("broker: reconnect")

// Broker is the client broker (C3): a state machine bridging the master to
// a remote view server, implemented as the spec's "sibling task"
// communicating with the master over channels rather than shared memory
// (spec §5).
type Broker struct {
	cfg    Config
	dialer Dialer
	logger *zap.Logger

	masterIn  <-chan MasterMsg
	masterOut chan<- ViewDelivery

	reqTable *Table
	seq      atomic.Uint32

	state     State
	identity  string
	dealer    DealerConn
	sub       SubConn
	reactor   *transport.Reactor

	heartbeatNext              time.Time
	heartbeatLivenessRemaining uint8
	reconnectIntervalNext      time.Duration
	shutdownTime               *time.Time
	masterPaused               bool

	metrics Metrics
}

// New constructs a broker. masterIn is the channel the master submits
// views/shutdown signals on; masterOut is where subscribed views are
// relayed. Closing masterIn is equivalent to "the master side drops"
// (spec §4.3).
func New(cfg Config, dialer Dialer, masterIn <-chan MasterMsg, masterOut chan<- ViewDelivery, logger *zap.Logger, metrics Metrics) *Broker {
	if cfg.MaxOutstandingReq <= 0 {
		cfg.MaxOutstandingReq = 64
	}
	return &Broker{
		cfg:                   cfg,
		dialer:                dialer,
		logger:                logger,
		masterIn:              masterIn,
		masterOut:             masterOut,
		reqTable:              NewTable(cfg.MaxOutstandingReq),
		reconnectIntervalNext: cfg.ReconnectIntervalMin,
		metrics:               metrics,
	}
}

// State returns the broker's current lifecycle state.
func (b *Broker) State() State { return b.state }

// IsJoined reports whether the broker currently holds a live connection,
// for use as the httpapi.BrokerStatus readiness check.
func (b *Broker) IsJoined() bool {
	return b.state == StateLive || b.state == StateReady
}

func (b *Broker) transition(to State) {
	if b.state == to {
		return
	}
	b.logger.Debug("broker: state transition", zap.String("from", b.state.String()), zap.String("to", to.String()))
	b.state = to
}

// Run connects, serves the reactor loop until a reconnect or shutdown is
// needed, and repeats until the broker exits or ctx is cancelled.
func (b *Broker) Run(ctx context.Context) error {
	for {
		if err := b.connect(ctx); err != nil {
			return bgverr.Wrap(bgverr.Transport, "broker: connect: %v", err)
		}

		err := b.runConnected(ctx)
		b.closeConns()

		switch {
		case err == nil:
			b.transition(StateExited)
			return nil
		case errors.Is(err, errReconnect):
			if b.shutdownTime != nil {
				// Already shutting down; don't reconnect, just exit.
				b.transition(StateExited)
				return nil
			}
			b.transition(StateReconnecting)
			b.metrics.ReconnectsTotal.Inc()
			select {
			case <-time.After(b.reconnectIntervalNext):
			case <-ctx.Done():
				return ctx.Err()
			}
			b.reconnectIntervalNext *= 2
			if b.reconnectIntervalNext > b.cfg.ReconnectIntervalMax {
				b.reconnectIntervalNext = b.cfg.ReconnectIntervalMax
			}
			continue
		default:
			return err
		}
	}
}

func (b *Broker) connect(ctx context.Context) error {
	b.transition(StateConnecting)

	identity := b.cfg.Identity
	if identity == "" {
		identity = generateIdentity()
	}
	b.identity = identity

	dealer, err := b.dialer.DialDealer(ctx, identity)
	if err != nil {
		return err
	}
	b.dealer = dealer

	interests, _ := transport.DecodeInterests(b.cfg.Interests)
	if b.cfg.Interests != 0 {
		sub, err := b.dialer.DialSub(ctx, interests)
		if err != nil {
			dealer.Close()
			return err
		}
		b.sub = sub
	} else {
		b.sub = nil
	}

	if err := b.dealer.SendFrames(ctx, transport.EncodeReady(interests, transport.Intents(b.cfg.Intents)), false); err != nil {
		return err
	}

	b.heartbeatLivenessRemaining = b.cfg.HeartbeatLiveness
	b.heartbeatNext = time.Now().Add(b.cfg.HeartbeatInterval)
	b.transition(StateReady)
	return nil
}

func (b *Broker) closeConns() {
	if b.dealer != nil {
		b.dealer.Close()
		b.dealer = nil
	}
	if b.sub != nil {
		b.sub.Close()
		b.sub = nil
	}
}

func (b *Broker) runConnected(ctx context.Context) error {
	r := transport.NewReactor()
	b.reactor = r
	b.masterPaused = false

	r.AddSource("master", b.masterIn, b.handleMaster)
	r.AddSource("server", b.dealer.Frames(), b.handleServer)
	if b.sub != nil {
		r.AddSource("sub", b.sub.Frames(), b.handleSub)
	}
	r.SetTimer(b.cfg.HeartbeatInterval, b.handleTick)
	// Requests survive a reconnect, so the table may still be full here.
	b.syncMasterReader(time.Now())

	return r.Run(ctx)
}

func (b *Broker) handleMaster(ctx context.Context, recv reflect.Value, ok bool) error {
	if !ok {
		return b.beginShutdown(ctx)
	}
	msg := recv.Interface().(MasterMsg)
	if msg.Type != transport.MsgView {
		return b.beginShutdown(ctx)
	}
	return b.submitView(ctx, msg.Payload)
}

func (b *Broker) submitView(ctx context.Context, payload []transport.Frame) error {
	idx, ok := b.reqTable.FindEmpty()
	if !ok {
		return bgverr.Wrap(bgverr.Protocol, "broker: request table full despite master reader being paused")
	}

	seq := b.seq.Add(1)
	interests, _ := transport.DecodeInterests(b.cfg.Interests)
	intents := transport.Intents(b.cfg.Intents)

	b.reqTable.Alloc(idx, seq, transport.MsgView, interests, intents, payload, b.cfg.RequestRetries, time.Now().Add(b.cfg.RequestTimeout))

	frames := transport.EncodeView(interests, intents, seq, payload)
	if err := b.dealer.SendFrames(ctx, frames, false); err != nil {
		b.reqTable.MarkUnused(idx)
		return err
	}

	b.metrics.RequestsSubmittedTotal.Inc()
	b.syncMasterReader(time.Now())
	return nil
}

func (b *Broker) handleServer(ctx context.Context, recv reflect.Value, ok bool) error {
	if !ok {
		return errReconnect
	}
	frames := recv.Interface().([]transport.Frame)
	b.onServerTraffic()

	decoded, err := transport.DecodeServerMsg(frames)
	if err != nil {
		return bgverr.Wrap(bgverr.Protocol, "broker: %v", err)
	}

	switch decoded.Type {
	case transport.MsgHeartbeat:
		// liveness already reset by onServerTraffic.
	case transport.MsgReply:
		if idx, found := b.reqTable.FindBySeq(decoded.SeqNum); found {
			b.reqTable.MarkUnused(idx)
			b.metrics.RepliesReceivedTotal.Inc()
			b.syncMasterReader(time.Now())
		}
	}

	if b.checkShutdownDone(time.Now()) {
		return b.exitWithTerm(ctx)
	}
	return nil
}

func (b *Broker) handleSub(ctx context.Context, recv reflect.Value, ok bool) error {
	if !ok {
		return errReconnect
	}
	msg := recv.Interface().(transport.SubMessage)
	b.onServerTraffic()

	delivery := ViewDelivery{Interests: msg.Interests, Payload: msg.Payload}
	select {
	case b.masterOut <- delivery:
	case <-ctx.Done():
		return ctx.Err()
	}
	b.metrics.ViewsRelayedTotal.Inc()
	return nil
}

func (b *Broker) handleTick(ctx context.Context, _ reflect.Value, _ bool) error {
	now := time.Now()

	if now.After(b.heartbeatNext) {
		if err := b.dealer.SendFrames(ctx, transport.EncodeHeartbeat(), false); err != nil {
			return err
		}
		b.heartbeatNext = now.Add(b.cfg.HeartbeatInterval)

		if b.heartbeatLivenessRemaining > 0 {
			b.heartbeatLivenessRemaining--
		}
		if b.heartbeatLivenessRemaining == 0 {
			b.transition(StateDegraded)
			return errReconnect
		}
	}

	if err := b.retransmitDue(ctx, now); err != nil {
		return err
	}

	if b.checkShutdownDone(now) {
		return b.exitWithTerm(ctx)
	}
	return nil
}

func (b *Broker) retransmitDue(ctx context.Context, now time.Time) error {
	for _, idx := range b.reqTable.DueForRetry(now) {
		seq, msgType, interests, intents, frames, retriesRemaining, _, inUse := b.reqTable.Get(idx)
		if !inUse || msgType != transport.MsgView {
			continue
		}
		if retriesRemaining == 0 {
			b.logger.Warn("broker: request retries exhausted, dropping", zap.Uint32("seq", seq))
			b.reqTable.MarkUnused(idx)
			b.metrics.RequestsDroppedTotal.Inc()
			b.syncMasterReader(now)
			continue
		}

		wireFrames := transport.EncodeView(interests, intents, seq, frames)
		if err := b.dealer.SendFrames(ctx, wireFrames, false); err != nil {
			return err
		}
		b.reqTable.SetRetry(idx, retriesRemaining-1, now.Add(b.cfg.RequestTimeout))
		b.metrics.RetransmitsTotal.Inc()
	}
	return nil
}

// onServerTraffic implements "any received server frame resets
// heartbeat_liveness_remaining" and the READY→LIVE transition on first
// frame, plus the backoff reset on any successful receive (spec §4.3).
func (b *Broker) onServerTraffic() {
	b.heartbeatLivenessRemaining = b.cfg.HeartbeatLiveness
	b.transition(StateLive)
	b.reconnectIntervalNext = b.cfg.ReconnectIntervalMin
}

func (b *Broker) beginShutdown(ctx context.Context) error {
	if b.shutdownTime != nil {
		return nil
	}
	t := time.Now().Add(b.cfg.ShutdownLinger)
	b.shutdownTime = &t
	b.transition(StateShuttingDown)
	b.syncMasterReader(time.Now())
	if b.checkShutdownDone(time.Now()) {
		return b.exitWithTerm(ctx)
	}
	return nil
}

func (b *Broker) checkShutdownDone(now time.Time) bool {
	if b.shutdownTime == nil {
		return false
	}
	return b.reqTable.Count() == 0 || !now.Before(*b.shutdownTime)
}

func (b *Broker) exitWithTerm(ctx context.Context) error {
	_ = b.dealer.SendFrames(ctx, transport.EncodeTerm(), false)
	return transport.ErrStop
}

// syncMasterReader enforces the invariant: the master reader is present in
// the reactor iff req_count < MaxOutstandingReq and (no shutdown deadline,
// or now is still before it) (spec §4.3 "Rate limiting", §8 invariant).
func (b *Broker) syncMasterReader(now time.Time) {
	if b.reactor == nil {
		return
	}
	shouldBePresent := b.reqTable.Count() < b.cfg.MaxOutstandingReq &&
		(b.shutdownTime == nil || now.Before(*b.shutdownTime))

	present := b.reactor.HasSource("master")
	if shouldBePresent && !present {
		b.reactor.AddSource("master", b.masterIn, b.handleMaster)
		b.masterPaused = false
	} else if !shouldBePresent && present {
		b.reactor.RemoveSource("master")
		b.masterPaused = true
	}
}

func generateIdentity() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return "bgpview-client-" + hex.EncodeToString(buf)
}
