// Package wire implements the Message Socket Adapter spec.md §4.3/§4.4
// describes: it bridges a net.Conn speaking the protocol frame format into
// the session package's callback surface, on one dedicated reader goroutine
// per connection (the "event thread" for inbound traffic). This is the Go
// realization of spec.md's "message-framing socket layer" collaborator,
// grounded in the teacher's transport.ClientTransport.recvLoop — but
// simplified to pure read/dispatch, since response-table bookkeeping
// (spec.md §3's `responses`) belongs to session.Session, not here.
package wire

import (
	"net"
	"sync"

	"github.com/raftkit/rpcsession/protocol"
)

// Handler receives frames and the disconnect notification. session.Session
// implements this interface; wire.Adapter never interprets message IDs or
// payloads itself.
type Handler interface {
	// OnReceiveMessage is invoked on the adapter's dedicated reader
	// goroutine for every decoded frame, including ping/pong frames
	// (messageID == protocol.PingMessageID).
	OnReceiveMessage(messageID uint64, payload []byte)

	// OnDisconnect is invoked once, on the reader goroutine, when the
	// connection is closed or a frame fails to decode.
	OnDisconnect()
}

// Adapter owns a net.Conn and enforces the frame protocol over it: exactly
// one goroutine reads (TCP is a byte stream; reads must stay sequential to
// track frame boundaries), and SendMessage serializes writers behind a
// mutex so concurrent senders can't interleave a header with another
// request's body.
type Adapter struct {
	conn             net.Conn
	maxMessageLength uint32
	handler          Handler

	sending sync.Mutex

	closeOnce sync.Once
}

// NewAdapter wraps conn and immediately starts the reader goroutine. The
// caller must not read from conn directly afterward.
func NewAdapter(conn net.Conn, maxMessageLength uint32, handler Handler) *Adapter {
	a := &Adapter{
		conn:             conn,
		maxMessageLength: maxMessageLength,
		handler:          handler,
	}
	go a.readLoop()
	return a
}

// readLoop is the adapter's event thread: it decodes frames one at a time
// and dispatches them to the handler until the connection breaks.
func (a *Adapter) readLoop() {
	for {
		header, body, err := protocol.Decode(a.conn, a.maxMessageLength)
		if err != nil {
			a.handler.OnDisconnect()
			return
		}
		a.handler.OnReceiveMessage(header.MessageID, body)
	}
}

// SendMessage serializes and writes one frame. It is safe to call from any
// goroutine; writes from concurrent callers are serialized so a frame is
// always written atomically (header immediately followed by its own body).
func (a *Adapter) SendMessage(messageID uint64, payload []byte) error {
	msgType := protocol.MsgTypeRequest
	if messageID == protocol.PingMessageID {
		msgType = protocol.MsgTypeHeartbeat
	}
	header := &protocol.Header{
		MsgType:   msgType,
		MessageID: messageID,
		BodyLen:   uint32(len(payload)),
	}

	a.sending.Lock()
	defer a.sending.Unlock()
	return protocol.Encode(a.conn, header, payload)
}

// Close closes the underlying connection. Safe to call multiple times;
// only the first call actually closes the socket.
func (a *Adapter) Close() error {
	var err error
	a.closeOnce.Do(func() {
		err = a.conn.Close()
	})
	return err
}
