// Package transport is the messaging substrate adapter (C1): typed-frame
// send/receive with a SEND_MORE continuation bit, non-blocking receive, a
// reactor-style event loop, and a subscribe filter for the pub channel.
// Grounded in the teacher's state.Pipeline.Run select-loop and in
// other_examples' ssr.Broker run/heartbeat goroutine pair — the Go-native
// replacement for a zloop reactor over raw sockets.
package transport

import (
	"context"
	"errors"
)

// ErrWouldBlock is returned by a non-blocking RecvFrame when no frame is
// currently available.
var ErrWouldBlock = errors.New("transport: would block")

// ErrStop is the terminal sentinel a Reactor handler returns to end Run.
var ErrStop = errors.New("transport: stop")

// ErrMalformed indicates a frame or record failed to parse — a protocol
// error per spec §4.3.
var ErrMalformed = errors.New("transport: malformed message")

// ErrUnknownType indicates an unrecognised message type byte from the
// server — also a protocol error that closes the connection.
var ErrUnknownType = errors.New("transport: unknown message type")

// MsgType enumerates the dealer/sub message types in spec §4.3/§6.
type MsgType uint8

const (
	MsgReady     MsgType = 1
	MsgHeartbeat MsgType = 2
	MsgTerm      MsgType = 3
	MsgView      MsgType = 4
	MsgReply     MsgType = 5
)

func (t MsgType) String() string {
	switch t {
	case MsgReady:
		return "READY"
	case MsgHeartbeat:
		return "HEARTBEAT"
	case MsgTerm:
		return "TERM"
	case MsgView:
		return "VIEW"
	case MsgReply:
		return "REPLY"
	default:
		return "UNKNOWN"
	}
}

// Frame is one opaque payload segment of a multi-frame message.
type Frame []byte

// Conn is the duplex connection a broker holds to one logical endpoint
// (dealer or sub). SendFrames transmits an ordered sequence of frames, the
// final one implicitly ending the message; more indicates whether further
// frames belonging to the same logical message will follow in a subsequent
// call. RecvFrame returns one frame at a time; more reports whether the
// peer flagged additional frames for the same message.
type Conn interface {
	SendFrames(ctx context.Context, frames []Frame, more bool) error
	RecvFrame(ctx context.Context, block bool) (frame Frame, more bool, err error)
	Close() error
}

// Identity is the client identity presented on the dealer socket: either an
// operator-supplied stable reconnect identity or one generated per
// connection (spec §4.1).
type Identity string
