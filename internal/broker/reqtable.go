// Package broker implements the client broker (C3) and its request table
// (C2): the state machine bridging an in-process master channel to a remote
// view server over the transport substrate, and the fixed-capacity table of
// outstanding requests it tracks retries and timeouts with.
package broker

import (
	"time"

	"github.com/bgpview/client/internal/transport"
)

// slot is one request record (spec §3 "Request record"). Ownership of
// msgFrames belongs to the table entry until MarkUnused releases it.
type slot struct {
	inUse            bool
	seqNum           uint32
	msgType          transport.MsgType
	interests        transport.Interests
	intents          transport.Intents
	msgFrames        []transport.Frame
	retriesRemaining uint8
	retryAt          time.Time
}

// Table is the fixed-capacity request table (spec §3/§4.2). Capacity is
// small (typically ≤ 64), so a linear scan suffices for both find
// operations.
type Table struct {
	slots []slot
	count int
}

// NewTable allocates a request table with the given fixed capacity.
func NewTable(capacity int) *Table {
	return &Table{slots: make([]slot, capacity)}
}

// Capacity returns the table's fixed capacity (MAX_OUTSTANDING_REQ).
func (t *Table) Capacity() int { return len(t.slots) }

// Count returns the number of in-use entries. Invariant: always equals
// |{r : r.inUse}| (spec §8).
func (t *Table) Count() int { return t.count }

// FindEmpty returns the index of the first free slot, if any.
func (t *Table) FindEmpty() (int, bool) {
	for i := range t.slots {
		if !t.slots[i].inUse {
			return i, true
		}
	}
	return 0, false
}

// FindBySeq returns the index of the in-use slot with the given sequence
// number, if any. Spec invariant: "in_use ⇒ seq_num uniquely identifies
// this request within the table", so at most one match exists.
func (t *Table) FindBySeq(seq uint32) (int, bool) {
	for i := range t.slots {
		if t.slots[i].inUse && t.slots[i].seqNum == seq {
			return i, true
		}
	}
	return 0, false
}

// Alloc populates a previously-empty slot and marks it in-use.
func (t *Table) Alloc(idx int, seqNum uint32, msgType transport.MsgType, interests transport.Interests, intents transport.Intents, frames []transport.Frame, retries uint8, retryAt time.Time) {
	t.slots[idx] = slot{
		inUse:            true,
		seqNum:           seqNum,
		msgType:          msgType,
		interests:        interests,
		intents:          intents,
		msgFrames:        frames,
		retriesRemaining: retries,
		retryAt:          retryAt,
	}
	t.count++
}

// MarkUnused releases a slot's owned frame storage and returns it to the
// free pool (spec §4.2 "releases all owned frames and decrements
// req_count").
func (t *Table) MarkUnused(idx int) {
	if !t.slots[idx].inUse {
		return
	}
	t.slots[idx] = slot{}
	t.count--
}

// Get returns a copy of the slot at idx for inspection (retry scheduling,
// retransmission framing).
func (t *Table) Get(idx int) (seqNum uint32, msgType transport.MsgType, interests transport.Interests, intents transport.Intents, frames []transport.Frame, retriesRemaining uint8, retryAt time.Time, inUse bool) {
	s := t.slots[idx]
	return s.seqNum, s.msgType, s.interests, s.intents, s.msgFrames, s.retriesRemaining, s.retryAt, s.inUse
}

// SetRetry updates a slot's retry bookkeeping after a retransmission.
func (t *Table) SetRetry(idx int, retriesRemaining uint8, retryAt time.Time) {
	t.slots[idx].retriesRemaining = retriesRemaining
	t.slots[idx].retryAt = retryAt
}

// DueForRetry returns the indices of in-use slots whose retry_at has
// passed as of now.
func (t *Table) DueForRetry(now time.Time) []int {
	var due []int
	for i := range t.slots {
		if t.slots[i].inUse && !t.slots[i].retryAt.After(now) {
			due = append(due, i)
		}
	}
	return due
}
