package transport

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeFrames_RoundTrip(t *testing.T) {
	frames := []Frame{
		[]byte("hello"),
		[]byte(""),
		[]byte{0x01, 0x02, 0x03},
	}
	buf := EncodeFrames(frames)
	got, err := DecodeFrames(buf)
	if err != nil {
		t.Fatalf("DecodeFrames: %v", err)
	}
	if len(got) != len(frames) {
		t.Fatalf("frame count mismatch: got %d want %d", len(got), len(frames))
	}
	for i := range frames {
		if !bytes.Equal(got[i], frames[i]) {
			t.Errorf("frame %d mismatch: got %v want %v", i, got[i], frames[i])
		}
	}
}

func TestDecodeFrames_Malformed(t *testing.T) {
	if _, err := DecodeFrames([]byte{0x01}); err != ErrMalformed {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	if _, err := DecodeFrames([]byte{0x01, 0x00, 0x00, 0x00, 0xFF, 0xFF, 0xFF, 0xFF}); err != ErrMalformed {
		t.Fatalf("expected ErrMalformed for overlong frame length, got %v", err)
	}
}

func TestInterests_EncodeDecodeRoundTrip(t *testing.T) {
	for _, i := range []Interests{InterestFirstFull, InterestFull, InterestPartial,
		InterestFirstFull | InterestPartial, InterestFull | InterestPartial,
		InterestFirstFull | InterestFull | InterestPartial} {
		b := EncodeByte(i)
		got, ok := DecodeInterests(b)
		if !ok {
			t.Fatalf("decode of %v failed", i)
		}
		if got != i {
			t.Errorf("round trip mismatch: got %v want %v", got, i)
		}
	}
}

func TestDecodeInterests_ZeroIsProtocolError(t *testing.T) {
	if _, ok := DecodeInterests(0); ok {
		t.Fatal("expected decode of zero byte to fail")
	}
}

func TestInterests_FirstFullImpliesFull(t *testing.T) {
	if !MatchSubscription(InterestFirstFull, InterestFull) {
		t.Fatal("FIRSTFULL subscriber should match a FULL-tagged message")
	}
	if MatchSubscription(InterestFull, InterestFirstFull) {
		t.Fatal("FULL subscriber should not match a FIRSTFULL-only-tagged message under strict hierarchy")
	}
	if !MatchSubscription(InterestPartial, InterestPartial) {
		t.Fatal("exact PARTIAL match should succeed")
	}
}

func TestEncodeView_Roundtrip(t *testing.T) {
	payload := []Frame{[]byte("p1"), []byte("p2")}
	frames := EncodeView(InterestFull, InterestPartial, 42, payload)

	decoded, err := DecodeRequest(frames)
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	if decoded.Type != MsgView {
		t.Fatalf("expected MsgView, got %v", decoded.Type)
	}
	if decoded.SeqNum != 42 {
		t.Fatalf("expected seq 42, got %d", decoded.SeqNum)
	}
	if decoded.Interests != InterestFull || decoded.Intents != InterestPartial {
		t.Fatalf("interests/intents mismatch: %v/%v", decoded.Interests, decoded.Intents)
	}
	if len(decoded.Payload) != 2 {
		t.Fatalf("expected 2 payload frames, got %d", len(decoded.Payload))
	}
}

func TestDecodeServerMsg_UnknownType(t *testing.T) {
	if _, err := DecodeServerMsg([]Frame{{0xEE}}); err != ErrUnknownType {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}
