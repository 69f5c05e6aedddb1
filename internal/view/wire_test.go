package view

import (
	"net/netip"
	"testing"
	"time"

	"github.com/bgpview/client/internal/transport"
)

func TestEncodeDecodeTuples_RoundTrip(t *testing.T) {
	ts := time.Unix(1700000000, 0).UTC()
	tuples := []Tuple{
		{
			Prefix:        PrefixKey{Version: AFIv4, BaseAddress: netip.MustParseAddr("203.0.113.0"), MaskLen: 24},
			Peer:          7,
			PeerSignature: "peer-7-sig",
			Origin:        ASPathSegment{ASN: 65000, IsPlain: true},
		},
		{
			Prefix:        PrefixKey{Version: AFIv6, BaseAddress: netip.MustParseAddr("2001:db8::"), MaskLen: 32},
			Peer:          9,
			PeerSignature: "",
			Origin:        ASPathSegment{ASN: 0, IsPlain: false},
		},
	}

	payload := EncodeTuples(ts, tuples)
	if len(payload) != 1 {
		t.Fatalf("expected exactly one payload frame, got %d", len(payload))
	}

	gotTS, gotTuples, err := DecodeTuples(payload)
	if err != nil {
		t.Fatalf("DecodeTuples: %v", err)
	}
	if !gotTS.Equal(ts) {
		t.Errorf("timestamp mismatch: got %v, want %v", gotTS, ts)
	}
	if len(gotTuples) != len(tuples) {
		t.Fatalf("tuple count mismatch: got %d, want %d", len(gotTuples), len(tuples))
	}
	for i, want := range tuples {
		got := gotTuples[i]
		if got.Prefix != want.Prefix {
			t.Errorf("tuple %d prefix: got %+v, want %+v", i, got.Prefix, want.Prefix)
		}
		if got.Peer != want.Peer {
			t.Errorf("tuple %d peer: got %v, want %v", i, got.Peer, want.Peer)
		}
		if got.PeerSignature != want.PeerSignature {
			t.Errorf("tuple %d signature: got %q, want %q", i, got.PeerSignature, want.PeerSignature)
		}
		if got.Origin != want.Origin {
			t.Errorf("tuple %d origin: got %+v, want %+v", i, got.Origin, want.Origin)
		}
	}
}

func TestDecodeTuples_EmptyView(t *testing.T) {
	ts := time.Unix(1700000000, 0).UTC()
	payload := EncodeTuples(ts, nil)

	gotTS, gotTuples, err := DecodeTuples(payload)
	if err != nil {
		t.Fatalf("DecodeTuples: %v", err)
	}
	if !gotTS.Equal(ts) {
		t.Errorf("timestamp mismatch: got %v, want %v", gotTS, ts)
	}
	if len(gotTuples) != 0 {
		t.Errorf("expected 0 tuples, got %d", len(gotTuples))
	}
}

func TestDecodeTuples_MalformedPayload(t *testing.T) {
	if _, _, err := DecodeTuples(nil); err == nil {
		t.Fatal("expected error for empty payload")
	}
	if _, _, err := DecodeTuples([]transport.Frame{}); err == nil {
		t.Fatal("expected error for zero-frame payload")
	}
}
