package session

import "time"

// TimeoutMS is the silence threshold and ping-response deadline from
// spec.md §6: after this many milliseconds without an inbound frame while
// requests are outstanding, the client gets suspicious and pings; after
// another TimeoutMS without a pong, the session is declared dead.
const TimeoutMS = 100

var timeoutDuration = TimeoutMS * time.Millisecond

// scheduleTimer arms the liveness timer to fire after d, invalidating any
// previously scheduled fire. Must be called with s.mu held.
//
// Go's time.AfterFunc has no atomic "reschedule" operation the way the
// original's Event::Timer does (Timer.Stop can race a callback that has
// already fired), so rescheduling here is realized by bumping a generation
// counter: onTimerFire checks its captured generation against the current
// one and treats a mismatch as the over-scheduled, harmless spurious wake
// spec.md §4.6/§9 already expects implementations to tolerate. This keeps
// "at most one pending schedule" true in effect even though, mechanically,
// a stale *time.Timer may still be ticking down underneath.
func (s *Session) scheduleTimer(d time.Duration) {
	s.timerGeneration++
	gen := s.timerGeneration
	time.AfterFunc(d, func() {
		s.onTimerFire(gen)
	})
}

// descheduleTimer invalidates any pending timer fire. Must be called with
// s.mu held.
func (s *Session) descheduleTimer() {
	s.timerGeneration++
}

// onTimerFire implements spec.md §4.5's liveness state machine. It fires on
// whatever goroutine the Go runtime's timer machinery schedules it on —
// the "event thread" lane for timer callbacks — and immediately acquires
// the session lock, exactly like the original's Timer::handleTimerEvent.
func (s *Session) onTimerFire(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.timerGeneration {
		// Superseded by a reschedule or deschedule since this fire was
		// armed: a harmless, expected spurious wake (spec.md P5).
		return
	}

	// Spurious wake-up guard: only active while requests are in flight
	// on a live, unerrored session.
	if s.adapter == nil || s.numActiveRPCs == 0 || s.errorMessage != "" {
		return
	}

	if !s.activePing {
		// SILENT -> SUSPECT: the server has been quiet for TimeoutMS.
		// Send a ping and get suspicious again in another TimeoutMS.
		log.Debugw("session is suspicious, sending ping", "address", s.address.String())
		s.activePing = true
		if err := s.adapter.SendMessage(PingMessageID, nil); err != nil {
			log.Warnw("failed to send ping", "address", s.address.String(), "error", err)
		}
		s.scheduleTimer(timeoutDuration)
		return
	}

	// SUSPECT and still no pong: declare the session dead.
	log.Infow("session timed out", "address", s.address.String())
	s.failLocked(ErrTimedOut, "Server "+s.address.String()+" timed out")
}
