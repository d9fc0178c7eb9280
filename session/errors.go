package session

import "errors"

// Sentinel error kinds from spec.md §7. Session.errorMessage stores the
// rendered string form (spec.md's data model requires a plain string field,
// monotonic once non-empty); these sentinels exist so callers constructing
// or inspecting a Session during Connect can use errors.Is/errors.As, the
// idiomatic Go way to distinguish failure kinds at a public API boundary —
// something the original's bare strings (and the teacher's plain
// fmt.Errorf calls) never needed, since C++ callers there only ever read
// the rendered message.
var (
	// ErrAddressInvalid - resolution failed before a connect was attempted.
	ErrAddressInvalid = errors.New("address invalid")

	// ErrSocketCreationFailed - OS-level socket allocation failure.
	ErrSocketCreationFailed = errors.New("socket creation failed")

	// ErrConnectFailed - synchronous/asynchronous connect error, or
	// connect-deadline expiry.
	ErrConnectFailed = errors.New("connect failed")

	// ErrDisconnected - peer closed or the transport reported disconnect
	// mid-session.
	ErrDisconnected = errors.New("disconnected from server")

	// ErrTimedOut - ping probe unanswered within TimeoutMS.
	ErrTimedOut = errors.New("timed out")

	// ErrCancelled - local caller cancelled the RPC.
	ErrCancelled = errors.New("cancelled")
)
