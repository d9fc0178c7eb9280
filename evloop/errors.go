package evloop

import "errors"

// ErrDeadlineExceeded is returned by AwaitWithDeadline when the deadline
// passes before the awaited operation completes.
var ErrDeadlineExceeded = errors.New("evloop: deadline exceeded")
