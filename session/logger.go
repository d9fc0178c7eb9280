package session

import "go.uber.org/zap"

// log is the package-level logger used for the VERBOSE/WARNING-level
// messages the original ClientSession.cc emits at exactly these points:
// unexpected ping responses, unexpected/duplicate replies, and suspicious
// (ping-sent) and timed-out liveness transitions. Overridable via
// SetLogger so embedding applications can route these into their own
// zap.Logger tree instead of the process-wide default.
var log = zap.NewNop().Sugar()

func init() {
	if l, err := zap.NewProduction(); err == nil {
		log = l.Sugar()
	}
}

// SetLogger replaces the package-level logger. Pass a *zap.Logger built by
// the embedding application (e.g. with its own sampling, output paths, or
// log level) so session's VERBOSE/WARNING lines land wherever the rest of
// the application's logs go.
func SetLogger(l *zap.Logger) {
	log = l.Sugar()
}
