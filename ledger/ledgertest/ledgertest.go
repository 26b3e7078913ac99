// Package ledgertest holds helpers shared by the ledger and backend tests: a
// controllable clock, a recording sink and a conformance suite every Store
// implementation runs.
package ledgertest

import (
	"context"
	"sync"
	"time"

	"social-ledger/ledger"
)

// StepClock returns Start, then Start+Step, Start+2*Step and so on.
type StepClock struct {
	mu   sync.Mutex
	now  time.Time
	Step time.Duration
}

func NewStepClock(start time.Time, step time.Duration) *StepClock {
	return &StepClock{now: start, Step: step}
}

func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now = c.now.Add(c.Step)
	return now
}

// RecordingSink keeps every published event in order.
type RecordingSink struct {
	mu     sync.Mutex
	events []ledger.Event
	Err    error
}

func (s *RecordingSink) Publish(_ context.Context, events ...ledger.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return s.Err
}

func (s *RecordingSink) Events() []ledger.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ledger.Event(nil), s.events...)
}

// OfType filters the recorded events.
func (s *RecordingSink) OfType(typ ledger.EventType) []ledger.Event {
	var out []ledger.Event
	for _, ev := range s.Events() {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}
