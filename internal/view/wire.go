package view

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"time"

	"github.com/bgpview/client/internal/bgverr"
	"github.com/bgpview/client/internal/transport"
	"github.com/klauspost/compress/zstd"
)

var zstdEncoder *zstd.Encoder
var zstdDecoder *zstd.Decoder

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil)
	if err != nil {
		panic(fmt.Sprintf("view: zstd encoder init: %v", err))
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic(fmt.Sprintf("view: zstd decoder init: %v", err))
	}
}

// EncodeTuples serializes a view snapshot into the single payload frame
// carried by a VIEW request (transport.EncodeView's payload argument). The
// layout mirrors the dealer/REPLY framing in internal/transport/wire.go:
// fixed-width fields, little-endian, length-prefixed variable fields.
//
//	[u64 timestamp unix-nano LE]
//	[u32 tuple count LE]
//	tuple: [u8 afi][u8 addr len][addr bytes][u16 mask len]
//	       [u32 peer id][u16 sig len][sig bytes]
//	       [u32 origin asn][u8 is plain]
func EncodeTuples(ts time.Time, tuples []Tuple) []transport.Frame {
	size := 8 + 4
	addrBytes := make([][]byte, len(tuples))
	for i, t := range tuples {
		b := t.Prefix.BaseAddress.AsSlice()
		addrBytes[i] = b
		size += 1 + 1 + len(b) + 2 + 4 + 2 + len(t.PeerSignature) + 4 + 1
	}

	buf := make([]byte, size)
	off := 0
	binary.LittleEndian.PutUint64(buf[off:], uint64(ts.UnixNano()))
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(tuples)))
	off += 4

	for i, t := range tuples {
		buf[off] = byte(t.Prefix.Version)
		off++
		addr := addrBytes[i]
		buf[off] = byte(len(addr))
		off++
		copy(buf[off:], addr)
		off += len(addr)
		binary.LittleEndian.PutUint16(buf[off:], uint16(t.Prefix.MaskLen))
		off += 2
		binary.LittleEndian.PutUint32(buf[off:], uint32(t.Peer))
		off += 4
		binary.LittleEndian.PutUint16(buf[off:], uint16(len(t.PeerSignature)))
		off += 2
		copy(buf[off:], t.PeerSignature)
		off += len(t.PeerSignature)
		binary.LittleEndian.PutUint32(buf[off:], t.Origin.ASN)
		off += 4
		if t.Origin.IsPlain {
			buf[off] = 1
		}
		off++
	}

	// A full routing table view runs into the hundreds of thousands of
	// tuples; zstd-compress the frame before it goes out over Kafka, the
	// way the teacher compresses raw BMP payloads before persisting them.
	compressed := zstdEncoder.EncodeAll(buf, nil)
	return []transport.Frame{compressed}
}

// DecodeTuples reverses EncodeTuples, reconstructing the timestamp and
// tuple slice carried in a VIEW request's payload frames.
func DecodeTuples(payload []transport.Frame) (time.Time, []Tuple, error) {
	if len(payload) != 1 {
		return time.Time{}, nil, bgverr.Wrap(bgverr.Protocol, "view: expected exactly one payload frame, got %d", len(payload))
	}
	buf, err := zstdDecoder.DecodeAll(payload[0], nil)
	if err != nil {
		return time.Time{}, nil, bgverr.Wrap(bgverr.Protocol, "view: zstd decompress: %v", err)
	}
	if len(buf) < 12 {
		return time.Time{}, nil, bgverr.Wrap(bgverr.Protocol, "view: payload frame too short")
	}
	off := 0
	ts := time.Unix(0, int64(binary.LittleEndian.Uint64(buf[off:])))
	off += 8
	count := binary.LittleEndian.Uint32(buf[off:])
	off += 4

	tuples := make([]Tuple, 0, count)
	for i := uint32(0); i < count; i++ {
		if off+2 > len(buf) {
			return time.Time{}, nil, bgverr.Wrap(bgverr.Protocol, "view: truncated tuple %d", i)
		}
		afi := AFI(buf[off])
		off++
		addrLen := int(buf[off])
		off++
		if off+addrLen > len(buf) {
			return time.Time{}, nil, bgverr.Wrap(bgverr.Protocol, "view: truncated address in tuple %d", i)
		}
		addr, ok := netip.AddrFromSlice(buf[off : off+addrLen])
		if !ok {
			return time.Time{}, nil, bgverr.Wrap(bgverr.Protocol, "view: malformed address in tuple %d", i)
		}
		off += addrLen

		if off+2 > len(buf) {
			return time.Time{}, nil, bgverr.Wrap(bgverr.Protocol, "view: truncated mask len in tuple %d", i)
		}
		maskLen := int(binary.LittleEndian.Uint16(buf[off:]))
		off += 2

		if off+4 > len(buf) {
			return time.Time{}, nil, bgverr.Wrap(bgverr.Protocol, "view: truncated peer id in tuple %d", i)
		}
		peer := PeerID(binary.LittleEndian.Uint32(buf[off:]))
		off += 4

		if off+2 > len(buf) {
			return time.Time{}, nil, bgverr.Wrap(bgverr.Protocol, "view: truncated signature length in tuple %d", i)
		}
		sigLen := int(binary.LittleEndian.Uint16(buf[off:]))
		off += 2
		if off+sigLen > len(buf) {
			return time.Time{}, nil, bgverr.Wrap(bgverr.Protocol, "view: truncated signature in tuple %d", i)
		}
		sig := string(buf[off : off+sigLen])
		off += sigLen

		if off+5 > len(buf) {
			return time.Time{}, nil, bgverr.Wrap(bgverr.Protocol, "view: truncated origin in tuple %d", i)
		}
		originASN := binary.LittleEndian.Uint32(buf[off:])
		off += 4
		isPlain := buf[off] == 1
		off++

		tuples = append(tuples, Tuple{
			Prefix: PrefixKey{
				Version:     afi,
				BaseAddress: addr,
				MaskLen:     maskLen,
			},
			Peer:          peer,
			PeerSignature: sig,
			Origin:        ASPathSegment{ASN: originASN, IsPlain: isPlain},
		})
	}

	return ts, tuples, nil
}

// DecodeView parses a VIEW request's payload into a ready-to-process View,
// backed by MemView since the wire representation carries a full tuple
// snapshot rather than a live iterator.
func DecodeView(payload []transport.Frame) (View, error) {
	ts, tuples, err := DecodeTuples(payload)
	if err != nil {
		return nil, err
	}
	return NewMemView(ts, tuples), nil
}
