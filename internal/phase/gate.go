// Package phase provides the rendezvous primitive that bridges an
// event-loop callback API to a blocking, deadline-bounded control flow.
// The callback goroutine records named phases as they complete; the
// controlling goroutine waits on each phase in turn.
package phase

import (
	"fmt"
	"sync"
	"time"
)

// DefaultTimeout bounds a single Wait when the caller passes no value.
const DefaultTimeout = 30 * time.Second

// pollInterval is how often Wait rechecks the phase map. Waiting on a poll
// loop rather than a pure signal keeps Wait correct even when a wake-up
// from the callback goroutine is missed.
const pollInterval = 100 * time.Millisecond

// FailedError reports that a phase completed with an error.
type FailedError struct {
	Phase  string
	Reason string
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("phase %s failed: %s", e.Phase, e.Reason)
}

// TimeoutError reports that a phase was not completed within the deadline.
type TimeoutError struct {
	Phase   string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("phase %s timed out after %s", e.Phase, e.Timeout)
}

// Gate records the outcome of named phases and lets another goroutine block
// until a phase is reached. A Gate serves a single session; create a fresh
// one per command.
type Gate struct {
	mu     sync.Mutex
	phases map[string]error // recorded outcome per phase; nil means success
	wake   chan struct{}
}

// NewGate returns an empty Gate.
func NewGate() *Gate {
	return &Gate{
		phases: make(map[string]error),
		wake:   make(chan struct{}, 1),
	}
}

// Complete records the outcome of a phase. A nil err marks success. Each
// phase is recorded at most once per Gate; completing the same phase twice
// is a bug in the caller and panics.
func (g *Gate) Complete(name string, err error) {
	g.mu.Lock()
	if _, dup := g.phases[name]; dup {
		g.mu.Unlock()
		panic(fmt.Sprintf("phase: %q completed twice", name))
	}
	g.phases[name] = err
	g.mu.Unlock()

	// Nudge the waiter so it rechecks ahead of its next poll tick.
	select {
	case g.wake <- struct{}{}:
	default:
	}
}

// Wait blocks until the named phase has been recorded or timeout elapses.
// It returns nil for a successful phase, a *FailedError when the recorded
// outcome carries an error, and a *TimeoutError when nothing was recorded
// in time. A timeout of zero or less means DefaultTimeout. The lock is
// released before every sleep.
func (g *Gate) Wait(name string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	deadline := time.Now().Add(timeout)
	for {
		g.mu.Lock()
		outcome, recorded := g.phases[name]
		g.mu.Unlock()

		if recorded {
			if outcome != nil {
				return &FailedError{Phase: name, Reason: outcome.Error()}
			}
			return nil
		}
		if time.Now().After(deadline) {
			return &TimeoutError{Phase: name, Timeout: timeout}
		}

		select {
		case <-g.wake:
		case <-time.After(pollInterval):
		}
	}
}
