package transport

import (
	"context"
	"reflect"
	"time"
)

// Handler processes one event fired by a reactor source. recv is the value
// received on the source's channel (zero Value if the channel was closed);
// ok mirrors the two-value channel receive form.
type Handler func(ctx context.Context, recv reflect.Value, ok bool) error

// source is one named input the reactor selects over. Channels are held as
// reflect.Value so the reactor can multiplex a heterogeneous, dynamically
// changing set of readers — this is what lets the broker "remove the
// master reader from the reactor" for rate limiting (spec §4.3) without a
// bespoke select statement per state.
type source struct {
	ch      reflect.Value
	handler Handler
}

// Reactor is the Go-native replacement for a zloop-style reactor: readers on
// sockets become named channel sources, the periodic timer becomes a
// time.Ticker, and Run is a select loop that exits when a handler returns
// ErrStop or ctx is cancelled. Grounded in the teacher's
// internal/state.Pipeline.Run select-loop and other_examples' ssr.Broker
// run/heartbeat goroutine pair.
type Reactor struct {
	sources map[string]source
	order   []string

	tickerInterval time.Duration
	ticker         *time.Ticker
	onTick         Handler
}

// NewReactor returns an empty reactor. Sources and the timer are added
// before calling Run.
func NewReactor() *Reactor {
	return &Reactor{sources: make(map[string]source)}
}

// AddSource registers a named channel reader. ch must be a channel value
// (typically chan T for whatever message type the source produces).
func (r *Reactor) AddSource(name string, ch any, handler Handler) {
	v := reflect.ValueOf(ch)
	if _, exists := r.sources[name]; !exists {
		r.order = append(r.order, name)
	}
	r.sources[name] = source{ch: v, handler: handler}
}

// RemoveSource unregisters a named reader; the reactor simply stops
// selecting on it until it is re-added. This is how the broker implements
// rate-limit backpressure: remove "master" when req_count reaches
// MaxOutstandingReq, re-add it once req_count drops back below.
func (r *Reactor) RemoveSource(name string) {
	if _, exists := r.sources[name]; !exists {
		return
	}
	delete(r.sources, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// HasSource reports whether name is currently registered.
func (r *Reactor) HasSource(name string) bool {
	_, ok := r.sources[name]
	return ok
}

// SetTimer installs the periodic timer (the broker's heartbeat clock).
func (r *Reactor) SetTimer(interval time.Duration, onTick Handler) {
	r.tickerInterval = interval
	r.onTick = onTick
}

// Run blocks, dispatching to the registered handlers, until a handler
// returns ErrStop (a clean shutdown) or ctx is cancelled (propagated as the
// returned error), or a handler returns any other non-nil error (propagated
// as-is — protocol/transport failures per spec §4.3 "Failure semantics").
func (r *Reactor) Run(ctx context.Context) error {
	if r.tickerInterval > 0 {
		r.ticker = time.NewTicker(r.tickerInterval)
		defer r.ticker.Stop()
	}

	for {
		cases := make([]reflect.SelectCase, 0, len(r.order)+2)
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())})
		names := make([]string, 0, len(r.order)+1)
		names = append(names, "")

		if r.ticker != nil {
			cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(r.ticker.C)})
			names = append(names, "__tick__")
		}

		for _, name := range r.order {
			src := r.sources[name]
			cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: src.ch})
			names = append(names, name)
		}

		chosen, recv, ok := reflect.Select(cases)
		name := names[chosen]

		switch name {
		case "":
			return ctx.Err()
		case "__tick__":
			if err := r.onTick(ctx, recv, ok); err != nil {
				if err == ErrStop {
					return nil
				}
				return err
			}
		default:
			src := r.sources[name]
			if err := src.handler(ctx, recv, ok); err != nil {
				if err == ErrStop {
					return nil
				}
				return err
			}
		}
	}
}
