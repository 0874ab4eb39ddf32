package sim

import (
	"container/heap"
	"sort"
)

// EventHandler receives each event as the scheduler processes it.
type EventHandler func(Event)

// eventHeap implements heap.Interface ordered by (timestamp, insertion seq).
// See the canonical example at https://pkg.go.dev/container/heap
type eventHeap []*Event

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].Timestamp != h[j].Timestamp {
		return h[i].Timestamp < h[j].Timestamp
	}
	return h[i].seq < h[j].seq
}
func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) {
	*h = append(*h, x.(*Event))
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// EventScheduler is the future event list: a min-priority queue of pending
// actions driving a monotonically non-decreasing virtual clock. The clock
// only moves when ProcessNext pops an event; there is no ticking.
type EventScheduler struct {
	heap    eventHeap
	now     float64
	seq     uint64
	handler EventHandler
}

// NewEventScheduler creates an empty scheduler at t=0. Every processed event
// is handed to handler; handler may schedule further events re-entrantly.
func NewEventScheduler(handler EventHandler) *EventScheduler {
	return &EventScheduler{
		heap:    make(eventHeap, 0),
		handler: handler,
	}
}

// Now returns the current simulation time.
func (s *EventScheduler) Now() float64 { return s.now }

// Schedule enqueues action to fire at timestamp under the given id. Events
// can never be scheduled before the current clock time.
func (s *EventScheduler) Schedule(timestamp float64, id string, action Action) error {
	if timestamp < s.now {
		return &PastTimestampError{Current: s.now, Requested: timestamp}
	}
	ev := &Event{
		Timestamp: timestamp,
		ID:        id,
		Action:    action,
		seq:       s.seq,
	}
	s.seq++
	heap.Push(&s.heap, ev)
	return nil
}

// ProcessNext pops the minimum (timestamp, insertion order) event, advances
// the clock to its timestamp, and invokes the handler. Handler side effects,
// including scheduling new events, are fully applied before ProcessNext
// returns.
func (s *EventScheduler) ProcessNext() error {
	if len(s.heap) == 0 {
		return &EmptyQueueError{}
	}
	ev := heap.Pop(&s.heap).(*Event)
	s.now = ev.Timestamp
	if s.handler != nil {
		s.handler(*ev)
	}
	return nil
}

// PeekNext returns the next event without mutating scheduler state. The
// second return is false when no events remain.
func (s *EventScheduler) PeekNext() (Event, bool) {
	if len(s.heap) == 0 {
		return Event{}, false
	}
	return *s.heap[0], true
}

// Cancel removes every not-yet-fired event with the given id, reporting
// whether anything was removed. The heap is rebuilt afterwards; O(n) is fine
// at expected event volumes.
func (s *EventScheduler) Cancel(id string) bool {
	kept := s.heap[:0]
	removed := false
	for _, ev := range s.heap {
		if ev.ID == id {
			removed = true
			continue
		}
		kept = append(kept, ev)
	}
	if !removed {
		return false
	}
	s.heap = kept
	heap.Init(&s.heap)
	return true
}

// HasEvents reports whether any events remain pending.
func (s *EventScheduler) HasEvents() bool { return len(s.heap) > 0 }

// PendingEvents returns a snapshot of pending events in firing order, for
// diagnostics and tests.
func (s *EventScheduler) PendingEvents() []Event {
	out := make([]Event, len(s.heap))
	for i, ev := range s.heap {
		out[i] = *ev
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].seq < out[j].seq
	})
	return out
}
