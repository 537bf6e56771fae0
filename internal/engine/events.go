package engine

import (
	"container/heap"
	"sync"
	"time"
)

// EventManager is a cooperative timer queue. Events may be scheduled from any
// goroutine but only run inside Process, on the goroutine that calls it.
type EventManager struct {
	mu    sync.Mutex
	now   func() time.Time
	queue eventQueue
	seq   uint64
}

type event struct {
	at  time.Time
	seq uint64
	fn  func()
}

// NewEventManager creates a scheduler reading time from now, or time.Now when
// nil.
func NewEventManager(now func() time.Time) *EventManager {
	if now == nil {
		now = time.Now
	}
	return &EventManager{now: now}
}

// Schedule queues fn to run once delay has elapsed. Events due at the same
// instant run in scheduling order.
func (m *EventManager) Schedule(delay time.Duration, fn func()) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	heap.Push(&m.queue, &event{at: m.now().Add(delay), seq: m.seq, fn: fn})
}

// Process runs every event that is due. Events scheduled while processing
// wait for the next call. It returns the number of events run.
func (m *EventManager) Process() int {
	m.mu.Lock()
	now := m.now()
	var due []*event
	for m.queue.Len() > 0 && !m.queue[0].at.After(now) {
		due = append(due, heap.Pop(&m.queue).(*event))
	}
	m.mu.Unlock()

	for _, ev := range due {
		ev.fn()
	}
	return len(due)
}

// Pending returns the number of queued events.
func (m *EventManager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queue.Len()
}

// Clear drops every queued event.
func (m *EventManager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = nil
}

type eventQueue []*event

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].at.Equal(q[j].at) {
		return q[i].seq < q[j].seq
	}
	return q[i].at.Before(q[j].at)
}

func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *eventQueue) Push(x any) { *q = append(*q, x.(*event)) }

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return ev
}
