// Package view defines the iteration contract the consumer pipeline depends
// on. The BGP view container itself is an external collaborator (spec §1
// non-goals); this package only describes the shape a view must expose and
// supplies an in-memory implementation for tests.
package view

import (
	"net/netip"
	"time"
)

// AFI is the address family of a prefix.
type AFI uint8

const (
	AFIv4 AFI = 4
	AFIv6 AFI = 6
)

func (a AFI) String() string {
	switch a {
	case AFIv4:
		return "v4"
	case AFIv6:
		return "v6"
	default:
		return "unknown"
	}
}

// PrefixKey identifies a prefix within a view. It is comparable so it can be
// used directly as a map key by the per-prefix user-data channel (C5).
type PrefixKey struct {
	Version     AFI
	BaseAddress netip.Addr
	MaskLen     int
}

// ASPathSegment is the origin segment of a route's AS path, already reduced
// to "plain ASN, or not" per spec §4.6 step 1: "taking the last AS-path
// segment only if that segment is a plain ASN; otherwise attribute to ASN 0".
type ASPathSegment struct {
	ASN     uint32
	IsPlain bool
}

// OriginASN returns the ASN this segment attributes to, applying the
// fallback-to-zero rule for non-plain (AS_SET or confederation) segments.
func (s ASPathSegment) OriginASN() uint32 {
	if s.IsPlain {
		return s.ASN
	}
	return 0
}

// PeerID identifies a peer within a view.
type PeerID uint32

// Tuple is one (prefix, peer, peer-signature, origin-AS-path-segment)
// observation as described in spec §3 "View (external)".
type Tuple struct {
	Prefix        PrefixKey
	Peer          PeerID
	PeerSignature string
	Origin        ASPathSegment
}

// View is the iteration interface the pipeline and C6 consume. The concrete
// BGP view container (prefixes, peers, paths, full-feed determination) lives
// outside this module.
type View interface {
	// Timestamp is the view's nominal snapshot time, used for arrival/
	// processed delay accounting and key package flush timestamps.
	Timestamp() time.Time

	// Tuples iterates every (prefix, peer, signature, origin) observation
	// in the view. Iteration stops early if yield returns false.
	Tuples(yield func(Tuple) bool)

	// UserData returns the per-prefix user-data channel (C5) attached to
	// this view instance. It is shared across consumers processing the
	// same view and cleared exactly once, by Clear.
	UserData() *UserData

	// Clear destroys all per-prefix user data attached during this view's
	// processing. Called once the view has been fully processed.
	Clear()
}
