package gate

import "time"

// DefaultAbsenceTimeout is how long a face may be missing before firing.
const DefaultAbsenceTimeout = 1500 * time.Millisecond

// AbsenceTimer fires once after a face has been missing for the timeout.
// It re-arms when a face is seen again.
type AbsenceTimer struct {
	timeout  time.Duration
	lastSeen time.Time
	fired    bool
}

// NewAbsenceTimer creates a timer; non-positive timeouts use the default.
func NewAbsenceTimer(timeout time.Duration) *AbsenceTimer {
	if timeout <= 0 {
		timeout = DefaultAbsenceTimeout
	}
	return &AbsenceTimer{timeout: timeout}
}

// Observe records whether a face was present at now and reports whether
// the absence signal fired on this sample.
func (a *AbsenceTimer) Observe(faceDetected bool, now time.Time) bool {
	if a.lastSeen.IsZero() || faceDetected {
		a.lastSeen = now
		if faceDetected {
			a.fired = false
		}
		return false
	}
	if a.fired || now.Sub(a.lastSeen) < a.timeout {
		return false
	}
	a.fired = true
	return true
}

// Absent reports whether the signal has fired and not been re-armed.
func (a *AbsenceTimer) Absent() bool {
	return a.fired
}
