// Package timeline holds the ordered, append-only message log of a session.
package timeline

import (
	"maps"
	"sync"
	"time"

	"ragdesk/internal/bus"
	"ragdesk/internal/domain"
)

// Timeline is the message log of one session. Entries are never mutated or
// reordered once inserted; the only writes are the two append primitives.
type Timeline struct {
	mu      sync.RWMutex
	entries []domain.Message
	lastID  int64

	// Append events are queued under mu and delivered in insertion order by a
	// single pump goroutine, so an append never waits on subscribers.
	qmu     sync.Mutex
	queue   []domain.Message
	pumping bool
	drained *sync.Cond

	events *bus.EventBus
	now    func() time.Time
}

// New creates an empty timeline. events may be nil.
func New(events *bus.EventBus) *Timeline {
	t := &Timeline{events: events, now: time.Now}
	t.drained = sync.NewCond(&t.qmu)
	return t
}

// AppendOptimistic inserts a user-originated entry and returns its id.
func (t *Timeline) AppendOptimistic(m domain.Message) int64 {
	m.Originator = domain.FromUser
	m.AnswerSource = ""
	return t.append(m)
}

// AppendResult inserts an assistant-originated entry after everything
// currently present and returns its id.
func (t *Timeline) AppendResult(m domain.Message) int64 {
	m.Originator = domain.FromAssistant
	return t.append(m)
}

func (t *Timeline) append(m domain.Message) int64 {
	m = clone(m)

	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	id := now.UnixMilli()
	if id <= t.lastID {
		id = t.lastID + 1
	}
	t.lastID = id
	m.ID = id
	m.CreatedAt = now
	t.entries = append(t.entries, m)

	if t.events != nil {
		t.qmu.Lock()
		t.queue = append(t.queue, clone(m))
		start := !t.pumping
		t.pumping = true
		t.qmu.Unlock()
		if start {
			go t.pump()
		}
	}
	return id
}

func (t *Timeline) pump() {
	for {
		t.qmu.Lock()
		if len(t.queue) == 0 {
			t.pumping = false
			t.drained.Broadcast()
			t.qmu.Unlock()
			return
		}
		m := t.queue[0]
		t.queue[0] = domain.Message{}
		t.queue = t.queue[1:]
		t.qmu.Unlock()

		t.events.Emit(bus.Event{
			Type:    bus.EventTimelineAppended,
			Source:  "timeline",
			Payload: map[string]any{"message": m},
		})
	}
}

// Flush blocks until every append event queued so far has been delivered.
// It must not be called from an event handler.
func (t *Timeline) Flush() {
	t.qmu.Lock()
	for t.pumping {
		t.drained.Wait()
	}
	t.qmu.Unlock()
}

// Snapshot returns a copy of the entries in insertion order.
func (t *Timeline) Snapshot() []domain.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.Message, len(t.entries))
	for i, m := range t.entries {
		out[i] = clone(m)
	}
	return out
}

// Len returns the number of entries.
func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// LastAssistant returns a copy of the most recent assistant entry, if any.
func (t *Timeline) LastAssistant() (domain.Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i := len(t.entries) - 1; i >= 0; i-- {
		if t.entries[i].Originator == domain.FromAssistant {
			return clone(t.entries[i]), true
		}
	}
	return domain.Message{}, false
}

// MessageFromEvent extracts the appended entry from a timeline event.
func MessageFromEvent(e bus.Event) (domain.Message, bool) {
	m, ok := e.Payload["message"].(domain.Message)
	return m, ok
}

// clone copies the sources and their metadata so no caller shares them with
// a stored entry. Sources are never nil.
func clone(m domain.Message) domain.Message {
	src := make([]domain.Source, len(m.Sources))
	for i, s := range m.Sources {
		s.Metadata = maps.Clone(s.Metadata)
		src[i] = s
	}
	m.Sources = src
	return m
}
