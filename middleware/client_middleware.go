package middleware

import (
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var clientLog = zap.NewNop().Sugar()

func init() {
	if l, err := zap.NewProduction(); err == nil {
		clientLog = l.Sugar()
	}
}

// SetClientLogger replaces the logger LoggingCallMiddleware writes to.
func SetClientLogger(l *zap.Logger) {
	clientLog = l.Sugar()
}

// CallFunc matches client.Client.Call's signature, so any client.Client can
// be wrapped as a CallFunc (c.Call) and passed through ChainCall.
type CallFunc func(serviceMethod string, args any, reply any) error

// ClientMiddleware wraps a CallFunc with cross-cutting behavior; this file
// provides retries, rate limiting and logging (there is no client-side
// timeout middleware; client.Client bounds each call with its own
// callTimeout). Unlike the server-side HandlerFunc
// chain, these run on the caller's goroutine and never touch session.Session
// directly — they only ever see the exported Call contract, so a caller
// opting into retry here is making an explicit choice the session core
// itself never makes on its behalf.
type ClientMiddleware func(next CallFunc) CallFunc

// ChainCall composes client middlewares the same way Chain composes
// server-side ones: ChainCall(A, B)(call) executes A's before-logic, then
// B's, then call, then B's after-logic, then A's.
func ChainCall(middlewares ...ClientMiddleware) ClientMiddleware {
	return func(next CallFunc) CallFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// RetryCallMiddleware retries a failed call up to maxRetries times with
// exponential backoff, but only for errors that look transient (timeout or
// connection refused) — a non-retryable server error (e.g. a business-logic
// failure) is returned immediately. This is the caller opting in explicitly;
// session.Session itself never retries a request on its own.
func RetryCallMiddleware(maxRetries int, baseDelay time.Duration) ClientMiddleware {
	return func(next CallFunc) CallFunc {
		return func(serviceMethod string, args any, reply any) error {
			err := next(serviceMethod, args, reply)
			for i := 0; i < maxRetries; i++ {
				if err == nil {
					return nil
				}
				if !isRetryable(err) {
					return err
				}
				clientLog.Infow("retrying call", "serviceMethod", serviceMethod, "attempt", i+1, "error", err)
				time.Sleep(baseDelay * time.Duration(1<<i))
				err = next(serviceMethod, args, reply)
			}
			return err
		}
	}
}

func isRetryable(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") || strings.Contains(msg, "connection refused")
}

// RateLimitCallMiddleware throttles outbound calls with a token bucket,
// rejecting calls over the burst rate rather than queueing them.
func RateLimitCallMiddleware(r float64, burst int) ClientMiddleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next CallFunc) CallFunc {
		return func(serviceMethod string, args any, reply any) error {
			if !limiter.Allow() {
				return errRateLimited{serviceMethod: serviceMethod}
			}
			return next(serviceMethod, args, reply)
		}
	}
}

type errRateLimited struct{ serviceMethod string }

func (e errRateLimited) Error() string {
	return "rate limit exceeded for " + e.serviceMethod
}

// LoggingCallMiddleware logs every call's duration and outcome.
func LoggingCallMiddleware() ClientMiddleware {
	return func(next CallFunc) CallFunc {
		return func(serviceMethod string, args any, reply any) error {
			start := time.Now()
			err := next(serviceMethod, args, reply)
			if err != nil {
				clientLog.Warnw("call failed", "serviceMethod", serviceMethod, "duration", time.Since(start), "error", err)
			} else {
				clientLog.Debugw("call completed", "serviceMethod", serviceMethod, "duration", time.Since(start))
			}
			return err
		}
	}
}
