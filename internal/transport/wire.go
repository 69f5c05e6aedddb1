package transport

import "encoding/binary"

// EncodeFrames packs an ordered frame sequence into a single byte slice:
// [u32 frame count LE]([u32 len LE][bytes])*. Kafka records have no native
// multi-frame SEND_MORE bit, so this is how a dealer-socket "message" (one
// or more frames) becomes one Kafka record value (spec §6 reinterpreted for
// Kafka, see SPEC_FULL §4).
func EncodeFrames(frames []Frame) []byte {
	total := 4
	for _, f := range frames {
		total += 4 + len(f)
	}
	buf := make([]byte, total)
	binary.LittleEndian.PutUint32(buf, uint32(len(frames)))
	off := 4
	for _, f := range frames {
		binary.LittleEndian.PutUint32(buf[off:], uint32(len(f)))
		off += 4
		copy(buf[off:], f)
		off += len(f)
	}
	return buf
}

// DecodeFrames reverses EncodeFrames.
func DecodeFrames(b []byte) ([]Frame, error) {
	if len(b) < 4 {
		return nil, ErrMalformed
	}
	count := binary.LittleEndian.Uint32(b)
	off := 4
	frames := make([]Frame, 0, count)
	for i := uint32(0); i < count; i++ {
		if off+4 > len(b) {
			return nil, ErrMalformed
		}
		l := binary.LittleEndian.Uint32(b[off:])
		off += 4
		if off+int(l) > len(b) {
			return nil, ErrMalformed
		}
		frames = append(frames, Frame(b[off:off+int(l)]))
		off += int(l)
	}
	return frames, nil
}

// Dealer request frame layout (spec §6):
//   [u8 msg_type][u8 interests][u8 intents][u32 seq_num LE][payload frames…]
// READY omits seq_num and payload. HEARTBEAT/TERM carry only the type byte.

// EncodeReady builds the READY message frame.
func EncodeReady(interests, intents Interests) []Frame {
	return []Frame{{byte(MsgReady), EncodeByte(interests), EncodeByte(intents)}}
}

// EncodeHeartbeat builds the HEARTBEAT message frame (dealer direction).
func EncodeHeartbeat() []Frame {
	return []Frame{{byte(MsgHeartbeat)}}
}

// EncodeTerm builds the TERM message frame.
func EncodeTerm() []Frame {
	return []Frame{{byte(MsgTerm)}}
}

// EncodeView builds a VIEW request: a header frame carrying interests,
// intents and the sequence number, followed by the payload frames
// unchanged.
func EncodeView(interests, intents Interests, seqNum uint32, payload []Frame) []Frame {
	header := make(Frame, 7)
	header[0] = byte(MsgView)
	header[1] = EncodeByte(interests)
	header[2] = EncodeByte(intents)
	binary.LittleEndian.PutUint32(header[3:], seqNum)
	out := make([]Frame, 0, 1+len(payload))
	out = append(out, header)
	out = append(out, payload...)
	return out
}

// DecodedRequest is a parsed dealer-direction request message.
type DecodedRequest struct {
	Type     MsgType
	Interests Interests
	Intents  Intents
	SeqNum   uint32
	Payload  []Frame
}

// DecodeRequest parses frames received on the server side of the dealer
// socket (unused by the client broker itself, but kept symmetric with
// EncodeView/EncodeReady for tests and for a future server-side peer).
func DecodeRequest(frames []Frame) (DecodedRequest, error) {
	if len(frames) == 0 {
		return DecodedRequest{}, ErrMalformed
	}
	head := frames[0]
	if len(head) < 1 {
		return DecodedRequest{}, ErrMalformed
	}
	d := DecodedRequest{Type: MsgType(head[0])}
	switch d.Type {
	case MsgHeartbeat, MsgTerm:
		return d, nil
	case MsgReady:
		if len(head) < 3 {
			return DecodedRequest{}, ErrMalformed
		}
		d.Interests = Interests(head[1])
		d.Intents = Intents(head[2])
		return d, nil
	case MsgView:
		if len(head) < 7 {
			return DecodedRequest{}, ErrMalformed
		}
		d.Interests = Interests(head[1])
		d.Intents = Intents(head[2])
		d.SeqNum = binary.LittleEndian.Uint32(head[3:7])
		d.Payload = frames[1:]
		return d, nil
	default:
		return DecodedRequest{}, ErrUnknownType
	}
}

// Server→broker REPLY: [u8 type][u32 seq_num LE]. HEARTBEAT: [u8 type].

// EncodeReply builds a REPLY message frame.
func EncodeReply(seqNum uint32) []Frame {
	f := make(Frame, 5)
	f[0] = byte(MsgReply)
	binary.LittleEndian.PutUint32(f[1:], seqNum)
	return []Frame{f}
}

// DecodedServerMsg is a parsed server-direction message on the dealer
// socket.
type DecodedServerMsg struct {
	Type   MsgType
	SeqNum uint32
}

// DecodeServerMsg parses a message received from the server on the dealer
// socket. Any type other than REPLY/HEARTBEAT is a protocol error (spec
// §4.3: "Unknown type from server is a protocol error and closes the
// connection").
func DecodeServerMsg(frames []Frame) (DecodedServerMsg, error) {
	if len(frames) == 0 || len(frames[0]) < 1 {
		return DecodedServerMsg{}, ErrMalformed
	}
	head := frames[0]
	switch MsgType(head[0]) {
	case MsgHeartbeat:
		return DecodedServerMsg{Type: MsgHeartbeat}, nil
	case MsgReply:
		if len(head) < 5 {
			return DecodedServerMsg{}, ErrMalformed
		}
		return DecodedServerMsg{Type: MsgReply, SeqNum: binary.LittleEndian.Uint32(head[1:5])}, nil
	default:
		return DecodedServerMsg{}, ErrUnknownType
	}
}
