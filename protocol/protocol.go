// Package protocol implements the length-prefixed binary frame format used
// between session.Session and its peer.
//
// It solves TCP's sticky-packet problem the same way the teacher's protocol
// package did: a fixed-size header followed by a variable-length body, with
// the header carrying the body's exact length. The message ID is widened to
// 64 bits here (spec.md's Message ID is a monotonic uint64, with 0 reserved
// for ping/pong), and Decode takes an explicit max body length so the
// Message Socket Adapter can enforce spec.md §6's "enforces
// maxMessageLength" without a second pass over the buffer.
//
// Frame format:
//
//	0      3  4  5  6                 14        18
//	┌──────┬──┬──┬──┬─────────────────┬─────────┬───────────────┐
//	│magic │v │ct│mt│    messageID    │ bodyLen │    body ...    │
//	│ mrp  │01│  │  │     uint64      │ uint32  │ bodyLen bytes  │
//	└──────┴──┴──┴──┴─────────────────┴─────────┴───────────────┘
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Magic number bytes: "mrp" (mini-rpc protocol), kept from the teacher so
// the wire format is recognizably the same family — rejects non-protocol
// connections (e.g. a stray HTTP client hitting the wrong port).
const (
	MagicNumber byte = 0x6d // 'm'
	MagicByte2  byte = 0x72 // 'r'
	MagicByte3  byte = 0x70 // 'p'
	Version     byte = 0x01
	HeaderSize  int  = 18 // 3 (magic) + 1 (version) + 1 (codec) + 1 (msgType) + 8 (messageID) + 4 (bodyLen)
)

// MsgType distinguishes request, response, and heartbeat frames. The
// session core never inspects MsgType directly — it only cares whether
// MessageID is the reserved ping ID — but the server harness and the
// higher-level client still use it to separate RPC traffic from liveness
// traffic on the wire.
type MsgType byte

const (
	MsgTypeRequest   MsgType = 0 // Client → Server RPC request
	MsgTypeResponse  MsgType = 1 // Server → Client RPC response
	MsgTypeHeartbeat MsgType = 2 // Ping/pong probe (message ID 0, empty body)
)

// Codec type constants, mirrored from the codec package to avoid a
// circular import; only meaningful for MsgTypeRequest/MsgTypeResponse
// frames carried by the higher-level client.
const (
	CodecTypeJSON   byte = 0
	CodecTypeBinary byte = 1
)

// PingMessageID is the reserved message ID spec.md §6 carves out for ping
// probes and their pong replies. No real request is ever assigned this ID.
const PingMessageID uint64 = 0

// Header represents the fixed frame header. It carries metadata needed to
// decode the following body correctly.
type Header struct {
	CodecType byte    // Serialization format: 0=JSON, 1=Binary; ignored for heartbeats
	MsgType   MsgType // Request, Response, or Heartbeat
	MessageID uint64  // The key to multiplexing (matches request ↔ response); 0 = ping/pong
	BodyLen   uint32  // Body length in bytes — solves TCP sticky packet problem
}

// Encode writes a complete frame (header + body) to w.
// The caller must hold a write lock if multiple goroutines share the same
// writer, otherwise frames from different requests will interleave and
// corrupt the stream.
func Encode(w io.Writer, h *Header, body []byte) error {
	buf := make([]byte, HeaderSize)

	copy(buf[0:3], []byte{MagicNumber, MagicByte2, MagicByte3})
	buf[3] = Version
	buf[4] = h.CodecType
	buf[5] = byte(h.MsgType)
	binary.BigEndian.PutUint64(buf[6:14], h.MessageID)
	binary.BigEndian.PutUint32(buf[14:18], h.BodyLen)

	if _, err := w.Write(buf); err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	return nil
}

// Decode reads a complete frame (header + body) from r, rejecting bodies
// larger than maxMessageLength (pass 0 to disable the check). It validates
// the magic number, version, codec type, and message type, and uses
// io.ReadFull to guarantee exactly N bytes are read, preventing partial
// reads from corrupting frame boundaries.
func Decode(r io.Reader, maxMessageLength uint32) (*Header, []byte, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return nil, nil, err
	}

	if headerBuf[0] != MagicNumber || headerBuf[1] != MagicByte2 || headerBuf[2] != MagicByte3 {
		return nil, nil, fmt.Errorf("invalid magic number: %x", headerBuf[0:3])
	}
	if headerBuf[3] != Version {
		return nil, nil, fmt.Errorf("unsupported version: %d", headerBuf[3])
	}
	if headerBuf[4] != CodecTypeJSON && headerBuf[4] != CodecTypeBinary {
		return nil, nil, fmt.Errorf("unsupported codec type: %d", headerBuf[4])
	}
	msgType := headerBuf[5]
	if msgType != byte(MsgTypeRequest) && msgType != byte(MsgTypeResponse) && msgType != byte(MsgTypeHeartbeat) {
		return nil, nil, fmt.Errorf("unsupported message type: %d", msgType)
	}

	messageID := binary.BigEndian.Uint64(headerBuf[6:14])
	bodyLen := binary.BigEndian.Uint32(headerBuf[14:18])

	if maxMessageLength > 0 && bodyLen > maxMessageLength {
		return nil, nil, fmt.Errorf("message length %d exceeds max %d", bodyLen, maxMessageLength)
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, err
	}

	return &Header{
		CodecType: headerBuf[4],
		MsgType:   MsgType(msgType),
		MessageID: messageID,
		BodyLen:   bodyLen,
	}, body, nil
}
