package pacing

import (
	"time"

	"github.com/use-agent/igextract/fingerprint"
)

// gapCapacity bounds the inter-request gap history.
const gapCapacity = 50

// ActionKind identifies a simulated interaction for the behaviour counters.
type ActionKind int

const (
	ActionMouse ActionKind = iota
	ActionScroll
	ActionClick
)

func (k ActionKind) String() string {
	switch k {
	case ActionMouse:
		return "mouse"
	case ActionScroll:
		return "scroll"
	case ActionClick:
		return "click"
	default:
		return "unknown"
	}
}

// SessionState is the mutable anti-detection state of one browser session.
//
// Requests and ConnErrors only grow inside a rotation window and are zeroed
// by Rotate alone. TotalRequests and the gap history survive rotation so the
// stealth report can describe the whole session. ConsecutiveErrors is reset
// by RecordSuccess and drives the backoff multiplier.
//
// SessionState is not safe for concurrent use; the coordinator owns it.
type SessionState struct {
	Profile fingerprint.Profile

	Started     time.Time // start of the current rotation window
	LastAction  time.Time
	LastRequest time.Time
	Elapsed     time.Duration

	Actions           int
	Requests          int
	TotalRequests     int
	ConnErrors        int
	ConsecutiveErrors int
	Rotations         int

	MouseSamples  int
	ScrollSamples int
	ClickSamples  int

	gaps gapRing
}

// NewSessionState starts a session presenting profile at now.
func NewSessionState(profile fingerprint.Profile, now time.Time) *SessionState {
	return &SessionState{
		Profile:    profile,
		Started:    now,
		LastAction: now,
		gaps:       newGapRing(gapCapacity),
	}
}

// Touch refreshes Elapsed relative to the current rotation window.
func (s *SessionState) Touch(now time.Time) {
	if now.After(s.Started) {
		s.Elapsed = now.Sub(s.Started)
	}
}

// RecordRequest counts one outgoing navigation and the gap since the last one.
func (s *SessionState) RecordRequest(now time.Time) {
	if !s.LastRequest.IsZero() && now.After(s.LastRequest) {
		s.gaps.push(now.Sub(s.LastRequest))
	}
	s.LastRequest = now
	s.Requests++
	s.TotalRequests++
	s.Touch(now)
}

// RecordError counts a connection or navigation failure.
func (s *SessionState) RecordError() {
	s.ConnErrors++
	s.ConsecutiveErrors++
}

// RecordSuccess clears the consecutive error streak. ConnErrors is untouched.
func (s *SessionState) RecordSuccess() {
	s.ConsecutiveErrors = 0
}

// RecordAction counts one simulated interaction made of n samples.
func (s *SessionState) RecordAction(kind ActionKind, n int, now time.Time) {
	s.Actions++
	switch kind {
	case ActionMouse:
		s.MouseSamples += n
	case ActionScroll:
		s.ScrollSamples += n
	case ActionClick:
		s.ClickSamples += n
	}
	s.LastAction = now
	s.Touch(now)
}

// Rotate replaces the profile and opens a new rotation window.
func (s *SessionState) Rotate(profile fingerprint.Profile, now time.Time) {
	s.Profile = profile
	s.Started = now
	s.Elapsed = 0
	s.Requests = 0
	s.ConnErrors = 0
	s.ConsecutiveErrors = 0
	s.Rotations++
}

// AverageGap is the mean of the recorded inter-request gaps, or zero.
func (s *SessionState) AverageGap() time.Duration {
	return s.gaps.mean()
}

// Gaps returns the recorded gaps, oldest first.
func (s *SessionState) Gaps() []time.Duration {
	return s.gaps.values()
}

// Snapshot returns a deep copy safe to hand to readers.
func (s *SessionState) Snapshot() SessionState {
	cp := *s
	cp.gaps = s.gaps.clone()
	return cp
}

// gapRing is a fixed-capacity FIFO of durations.
type gapRing struct {
	buf  []time.Duration
	head int
	full bool
}

func newGapRing(capacity int) gapRing {
	return gapRing{buf: make([]time.Duration, capacity)}
}

func (r *gapRing) push(d time.Duration) {
	if len(r.buf) == 0 {
		return
	}
	r.buf[r.head] = d
	r.head = (r.head + 1) % len(r.buf)
	if r.head == 0 {
		r.full = true
	}
}

func (r *gapRing) len() int {
	if r.full {
		return len(r.buf)
	}
	return r.head
}

func (r *gapRing) values() []time.Duration {
	n := r.len()
	out := make([]time.Duration, 0, n)
	if r.full {
		out = append(out, r.buf[r.head:]...)
	}
	return append(out, r.buf[:r.head]...)
}

func (r *gapRing) mean() time.Duration {
	n := r.len()
	if n == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range r.values() {
		sum += d
	}
	return sum / time.Duration(n)
}

func (r *gapRing) clone() gapRing {
	cp := *r
	cp.buf = append([]time.Duration(nil), r.buf...)
	return cp
}
