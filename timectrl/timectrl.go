package timectrl

import (
	"container/heap"
	"fmt"
	"sync"
	"time"
)

// SimClock is an interface for accessing simulation time. Components that
// need "now" (the occupancy tracker in particular) depend on this abstraction
// rather than a concrete clock type, enabling testability.
type SimClock interface {
	// Now returns the current simulation time.
	Now() time.Time
}

// ManualClock is a SimClock advanced explicitly by its owner, typically the
// EventScheduler or a test. It never moves backwards: simulated time is
// monotonic by contract, and an attempt to rewind it indicates a bug in the
// driving code, so it aborts with a diagnostic.
type ManualClock struct {
	mu  sync.RWMutex
	now time.Time
}

// NewManualClock constructs a clock positioned at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the current simulation time. Implements SimClock.
func (c *ManualClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Set moves the clock to t. Equal time is allowed (multiple events can share
// a timestamp); earlier time is fatal.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.Before(c.now) {
		panic(fmt.Sprintf("timectrl: clock moved backwards from %v to %v", c.now, t))
	}
	c.now = t
}

// Advance moves the clock forward by d and returns the new time.
func (c *ManualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d < 0 {
		panic(fmt.Sprintf("timectrl: negative advance %v", d))
	}
	c.now = c.now.Add(d)
	return c.now
}

// EventScheduler is a minimal discrete-event driver: callbacks are scheduled
// at absolute simulation times and executed in nondecreasing time order,
// stable for equal times. Before each callback runs, the scheduler advances
// its ManualClock to the event's time, so code invoked by an event observes
// a consistent "now".
//
// The scheduler is single-threaded and cooperative; Run executes events to
// completion on the calling goroutine. Callbacks may schedule further events
// at or after the current time.
type EventScheduler struct {
	clock *ManualClock

	queue eventQueue
	seq   uint64
}

type event struct {
	at  time.Time
	seq uint64 // insertion order, breaks ties deterministically
	fn  func()
}

// NewEventScheduler constructs a scheduler driving the given clock.
func NewEventScheduler(clock *ManualClock) *EventScheduler {
	return &EventScheduler{clock: clock}
}

// Clock exposes the scheduler's clock as a SimClock for components that
// only need to read simulation time.
func (s *EventScheduler) Clock() SimClock { return s.clock }

// Now returns the current simulation time.
func (s *EventScheduler) Now() time.Time { return s.clock.Now() }

// ScheduleAt enqueues fn to run at the absolute simulation time at.
// Scheduling in the past is fatal.
func (s *EventScheduler) ScheduleAt(at time.Time, fn func()) {
	if at.Before(s.clock.Now()) {
		panic(fmt.Sprintf("timectrl: event scheduled at %v, before current time %v", at, s.clock.Now()))
	}
	s.seq++
	heap.Push(&s.queue, event{at: at, seq: s.seq, fn: fn})
}

// ScheduleAfter enqueues fn to run d after the current simulation time.
func (s *EventScheduler) ScheduleAfter(d time.Duration, fn func()) {
	s.ScheduleAt(s.clock.Now().Add(d), fn)
}

// Run executes queued events until none remain, including events scheduled
// by earlier events. It returns the number of events executed.
func (s *EventScheduler) Run() int {
	executed := 0
	for s.queue.Len() > 0 {
		ev := heap.Pop(&s.queue).(event)
		s.clock.Set(ev.at)
		ev.fn()
		executed++
	}
	return executed
}

// Pending returns the number of events not yet executed.
func (s *EventScheduler) Pending() int { return s.queue.Len() }

// eventQueue orders events by (time, insertion sequence).
type eventQueue []event

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].at.Equal(q[j].at) {
		return q[i].seq < q[j].seq
	}
	return q[i].at.Before(q[j].at)
}

func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *eventQueue) Push(x any) { *q = append(*q, x.(event)) }

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	ev := old[n-1]
	*q = old[:n-1]
	return ev
}
