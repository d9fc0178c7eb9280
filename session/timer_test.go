package session

import (
	"testing"
	"time"
)

// newBareSession builds a Session with no adapter, suitable for exercising
// the timer's bookkeeping in isolation (no real connection involved).
func newBareSession() *Session {
	return &Session{
		nextMessageID: 1,
		responses:     make(map[uint64]*responseSlot),
	}
}

// A reschedule bumps the generation, so a fire captured under the old
// generation is a no-op: P5, "spurious fires are safely no-ops".
func TestTimerRescheduleInvalidatesOldGeneration(t *testing.T) {
	s := newBareSession()
	s.numActiveRPCs = 1

	s.mu.Lock()
	s.scheduleTimer(time.Hour) // never fires within the test
	staleGen := s.timerGeneration
	s.scheduleTimer(time.Hour) // bumps the generation again
	s.mu.Unlock()

	s.onTimerFire(staleGen)

	s.mu.Lock()
	activePing := s.activePing
	s.mu.Unlock()
	if activePing {
		t.Fatal("a stale-generation fire must not advance the liveness state machine")
	}
}

// With no active RPCs, a (non-stale) timer fire is a pure no-op: the
// spurious-wake guard in onTimerFire must suppress it.
func TestTimerFireNoopWhenNoActiveRPCs(t *testing.T) {
	s := newBareSession()

	s.mu.Lock()
	s.scheduleTimer(time.Hour)
	gen := s.timerGeneration
	s.mu.Unlock()

	s.onTimerFire(gen)

	s.mu.Lock()
	activePing := s.activePing
	errMsg := s.errorMessage
	s.mu.Unlock()
	if activePing || errMsg != "" {
		t.Fatal("timer fire with numActiveRPCs == 0 must not touch liveness state")
	}
}

// A fire on an already-errored session must not clobber the recorded error.
func TestTimerFireNoopWhenAlreadyFailed(t *testing.T) {
	s := newBareSession()
	s.numActiveRPCs = 1

	s.mu.Lock()
	s.scheduleTimer(time.Hour)
	gen := s.timerGeneration
	s.failLocked(ErrDisconnected, "already dead")
	s.mu.Unlock()

	s.onTimerFire(gen)

	s.mu.Lock()
	errMsg := s.errorMessage
	kind := s.errKind
	s.mu.Unlock()
	if errMsg != "already dead" || kind != ErrDisconnected {
		t.Fatalf("timer fire overwrote an existing failure: %q / %v", errMsg, kind)
	}
}

// descheduleTimer must also leave a pending fire as a no-op once it lands —
// same generation-bump mechanism.
func TestDescheduleTimerInvalidatesPendingFire(t *testing.T) {
	s := newBareSession()
	s.numActiveRPCs = 1

	s.mu.Lock()
	s.scheduleTimer(time.Hour)
	gen := s.timerGeneration
	s.descheduleTimer()
	s.mu.Unlock()

	s.onTimerFire(gen)

	s.mu.Lock()
	activePing := s.activePing
	s.mu.Unlock()
	if activePing {
		t.Fatal("a fire captured before descheduleTimer must not fire logic after it")
	}
}
