// Package session implements the client-side RPC session core described by
// spec.md: a long-lived, multiplexed request/response channel over a
// reliable byte stream to one server, with liveness monitoring, timeout
// handling, and concurrent in-flight requests from multiple caller
// goroutines. It is a direct port of
// original_source/RPC/ClientSession.cc (LogCabin's ClientSession), adapted
// to Go's concurrency primitives (sync.Mutex/sync.Cond instead of
// std::mutex/std::condition_variable, goroutines instead of a dedicated
// event-loop thread for callbacks).
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coreos/go-semver/semver"

	"github.com/raftkit/rpcsession/addr"
	"github.com/raftkit/rpcsession/protocol"
	"github.com/raftkit/rpcsession/wire"
)

// PingMessageID is the reserved message ID spec.md §6 carves out for
// liveness probes; no real request is ever assigned this ID.
const PingMessageID = protocol.PingMessageID

// ConnectMaxDeadline bounds how long Connect will wait for a connection to
// complete, regardless of the deadline the caller passes in — a defense
// against pathologically long kernel TCP connect timeouts (spec.md §4.1
// step 2).
const ConnectMaxDeadline = 10 * time.Second

// ProtocolVersion identifies the wire protocol this session package speaks,
// surfaced through Session.String(). A real semver
// value (rather than a bare numeric literal) because bumping the frame
// format (see protocol.Version) is exactly the kind of change that should
// be comparable, not just printable.
var ProtocolVersion = semver.New("1.0.0")

// Session is one connection to one peer. All fields below the mutex are
// guarded by it; address and adapter are set once during construction and
// never mutated afterward, so they're safe to read without the lock.
//
// See spec.md §3 for the full data model and invariants (I1-I5) this type
// must maintain.
type Session struct {
	address addr.Address
	adapter *wire.Adapter // nil for a born-dead session (construction failed)

	mu sync.Mutex

	nextMessageID uint64
	responses     map[uint64]*responseSlot
	errorMessage  string
	errKind       error // sentinel from errors.go classifying errorMessage, for errors.Is/As
	numActiveRPCs int
	activePing    bool

	timerGeneration uint64
}

// MakeSession implements spec.md §4.1: it resolves nothing itself (address
// must already be resolved via the addr package), clamps the deadline,
// dials the peer, and wraps the resulting connection in a wire.Adapter.
// Failures at any step are non-fatal to the process: MakeSession always
// returns a non-nil *Session, with ErrorMessage() reporting the failure
// lazily, exactly as spec.md requires ("born-dead" session).
func MakeSession(ctx context.Context, address addr.Address, maxMessageLength uint32, deadline time.Time) *Session {
	s := &Session{
		address:       address,
		nextMessageID: 1, // 0 is reserved for PingMessageID
		responses:     make(map[uint64]*responseSlot),
	}

	if !address.Valid() {
		s.errorMessage = fmt.Sprintf("Failed to resolve %s", address.String())
		s.errKind = ErrAddressInvalid
		return s
	}

	clamped := deadline
	if maxDeadline := time.Now().Add(ConnectMaxDeadline); clamped.After(maxDeadline) {
		clamped = maxDeadline
	}

	conn, err := dial(ctx, address, clamped)
	if err != nil {
		s.errorMessage = err.Error()
		s.errKind = classifyDialErr(err)
		return s
	}

	s.adapter = wire.NewAdapter(conn, maxMessageLength, s)
	return s
}

// SendRequest implements spec.md §4.2: it always returns an RPC handle,
// never blocks on I/O, and allocates exactly one message ID per call.
func (s *Session) SendRequest(payload []byte) *RPC {
	s.mu.Lock()
	id := s.nextMessageID
	s.nextMessageID++
	s.responses[id] = newResponseSlot(&s.mu)

	s.numActiveRPCs++
	if s.numActiveRPCs == 1 {
		// activePing's value was meaningless while numActiveRPCs == 0.
		s.activePing = false
		s.scheduleTimer(timeoutDuration)
	}
	s.mu.Unlock()

	// Release the lock before sending so inbound delivery on the reader
	// goroutine is never blocked behind send latency.
	if s.adapter != nil {
		if err := s.adapter.SendMessage(id, payload); err != nil {
			log.Warnw("failed to send request", "address", s.address.String(), "messageID", id, "error", err)
		}
	}

	return &RPC{session: s, responseToken: id}
}

// Cancel implements spec.md §4.6. It is idempotent and safe to call from
// any goroutine; it never blocks beyond acquiring the session lock.
func (s *Session) Cancel(rpc *RPC) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.responses[rpc.responseToken]
	if !ok {
		return // already cancelled or already updated away
	}
	if slot.hasWaiter {
		// The waiter, not this call, frees the slot: avoids a double
		// free and avoids acquiring the timer's scheduling state under
		// the session lock.
		slot.status = statusCanceled
		slot.cond.Broadcast()
	} else {
		delete(s.responses, rpc.responseToken)
	}
	s.numActiveRPCs--
	// The timer may now be over-scheduled (it will fire once with
	// nothing to do); onTimerFire's spurious-wake guard absorbs that.
}

// Wait implements spec.md §4.7: it blocks the calling goroutine until one
// of reply-arrived, cancelled, session-errored, or deadline-elapsed holds.
// It never returns "ready" when none of those conditions are true.
func (s *Session) Wait(rpc *RPC, deadline time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		slot, ok := s.responses[rpc.responseToken]
		if !ok {
			return // already finalized
		}
		if slot.status == statusHasReply {
			return
		}
		if slot.status == statusCanceled {
			delete(s.responses, rpc.responseToken)
			return
		}
		if s.errorMessage != "" {
			return
		}
		if !deadline.After(time.Now()) {
			return
		}

		slot.hasWaiter = true
		waitUntil(slot.cond, deadline)
		slot.hasWaiter = false
	}
}

// Update implements spec.md §4.8: it projects the shared slot state onto
// rpc and removes the slot if the RPC has reached a terminal state. It
// never blocks.
func (s *Session) Update(rpc *RPC) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.responses[rpc.responseToken]
	if !ok {
		// The slot is gone either because a prior Update already finalized
		// this RPC (rpc.finalized is set, and Status must not change again),
		// or because Cancel/Wait deleted it without this RPC ever having
		// been finalized, which is the one case that should observe
		// Canceled here.
		if !rpc.finalized {
			rpc.Status = Canceled
			rpc.ErrorMessage = ErrCancelled.Error()
			rpc.session = nil
			rpc.finalized = true
		}
		return
	}

	switch {
	case slot.status == statusHasReply:
		rpc.Reply = slot.reply
		rpc.Status = OK
		rpc.session = nil
	case s.errorMessage != "":
		rpc.ErrorMessage = s.errorMessage
		rpc.Status = Error
		rpc.session = nil
	default:
		return // not yet ready
	}

	rpc.finalized = true
	delete(s.responses, rpc.responseToken)
}

// Close releases the underlying connection. Go has no destructors, so unlike
// the original's ~ClientSession (which closed the socket implicitly when the
// last shared_ptr reference dropped), callers here must close a Session
// explicitly once they're done with it. Close is idempotent and safe to call
// from any goroutine; it marks the session failed so in-flight Waits return
// immediately instead of hanging on a socket nobody is reading anymore.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.errorMessage == "" {
		s.failLocked(ErrDisconnected, "Session to "+s.address.String()+" closed locally")
	}
	s.mu.Unlock()

	if s.adapter != nil {
		return s.adapter.Close()
	}
	return nil
}

// ErrorMessage returns the session's terminal error, or "" while healthy.
// Once non-empty it never changes (spec.md invariant I5/P3).
func (s *Session) ErrorMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errorMessage
}

// Err returns the session's terminal error wrapped around its sentinel
// kind (see errors.go), or nil while healthy. Unlike ErrorMessage, this is
// safe to use with errors.Is/errors.As, e.g. errors.Is(s.Err(), ErrTimedOut).
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errorMessage == "" {
		return nil
	}
	return fmt.Errorf("%w: %s", s.errKind, s.errorMessage)
}

// String renders the session for logging, matching the original's
// toString(): "Active session to <addr> (protocol v<ProtocolVersion>)"
// while healthy, or "Closed session: <error>" once errored.
func (s *Session) String() string {
	errMsg := s.ErrorMessage()
	if errMsg == "" {
		return fmt.Sprintf("Active session to %s (protocol v%s)", s.address.String(), ProtocolVersion.String())
	}
	return "Closed session: " + errMsg
}

// OnReceiveMessage implements wire.Handler, realizing spec.md §4.3.
func (s *Session) OnReceiveMessage(messageID uint64, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if messageID == PingMessageID {
		if s.numActiveRPCs > 0 && s.activePing {
			// The server has shown it's alive for now; get suspicious
			// again in another TimeoutMS.
			s.activePing = false
			s.scheduleTimer(timeoutDuration)
		} else {
			log.Debugw("received unexpected ping response", "address", s.address.String())
		}
		return
	}

	slot, ok := s.responses[messageID]
	if !ok {
		log.Debugw("received response for unknown message ID", "address", s.address.String(), "messageID", messageID)
		return
	}
	if slot.status == statusHasReply {
		log.Warnw("received duplicate response", "address", s.address.String(), "messageID", messageID)
		return
	}

	s.numActiveRPCs--
	if s.numActiveRPCs == 0 {
		s.descheduleTimer()
	} else {
		s.scheduleTimer(timeoutDuration)
	}

	slot.status = statusHasReply
	slot.reply = payload
	slot.cond.Broadcast()
}

// OnDisconnect implements wire.Handler, realizing spec.md §4.4.
func (s *Session) OnDisconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.errorMessage != "" {
		return // disconnect after an already-reported failure is common
	}
	log.Infow("disconnected from server", "address", s.address.String())
	s.failLocked(ErrDisconnected, "Disconnected from server "+s.address.String())
}

// failLocked sets errorMessage (once) and wakes every waiter so blocked
// goroutines observe the failure. Must be called with s.mu held, and only
// when s.errorMessage is still empty.
func (s *Session) failLocked(kind error, message string) {
	s.errorMessage = message
	s.errKind = kind
	for _, slot := range s.responses {
		slot.cond.Broadcast()
	}
}

// waitUntil blocks on cond until Broadcast/Signal or deadline, whichever
// comes first. sync.Cond has no built-in deadline, so a small watchdog
// goroutine wakes the waiter at the deadline — the one place this Go port
// needs a goroutine the original C++ (condition_variable::wait_until)
// didn't.
func waitUntil(cond *sync.Cond, deadline time.Time) {
	if !deadline.After(time.Now()) {
		return
	}
	timer := time.AfterFunc(time.Until(deadline), func() {
		cond.L.Lock()
		cond.Broadcast()
		cond.L.Unlock()
	})
	defer timer.Stop()
	cond.Wait()
}
