package session

import (
	"github.com/pavelanni/focusroom/internal/model"
	"github.com/pavelanni/focusroom/internal/steplog"
	"github.com/pavelanni/focusroom/internal/task"
)

// EventType classifies a session event.
type EventType string

const (
	EventPhase           EventType = "phase"
	EventLog             EventType = "log"
	EventNotice          EventType = "notice"
	EventOutcome         EventType = "outcome"
	EventNarrationFailed EventType = "narration_failed"
)

// Event is delivered to observers in the order it happened.
type Event struct {
	Seq       uint64             `json:"seq"`
	SessionID string             `json:"session_id"`
	Type      EventType          `json:"type"`
	Phase     *model.PhaseChange `json:"phase,omitempty"`
	Entry     *steplog.Entry     `json:"entry,omitempty"`
	Notice    string             `json:"notice,omitempty"`
	Outcome   *task.Outcome      `json:"outcome,omitempty"`
}

// Observer receives session events. Observers run on the goroutine of the
// command that produced the event and must not call session commands.
type Observer func(Event)

type observer struct {
	id int
	fn Observer
}

// Subscribe registers fn and returns a function that removes it.
func (c *Controller) Subscribe(fn Observer) func() {
	c.mu.Lock()
	c.nextObs++
	id := c.nextObs
	c.observers = append(c.observers, observer{id: id, fn: fn})
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, o := range c.observers {
			if o.id == id {
				c.observers = append(c.observers[:i:i], c.observers[i+1:]...)
				return
			}
		}
	}
}

// emit queues an event. Callers hold c.mu.
func (c *Controller) emit(e Event) {
	c.seq++
	e.Seq = c.seq
	e.SessionID = c.id
	c.pending = append(c.pending, e)
}

// flush delivers queued events in order. Callers must not hold c.mu.
func (c *Controller) flush() {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()
	for {
		c.mu.Lock()
		batch := c.pending
		c.pending = nil
		obs := make([]observer, len(c.observers))
		copy(obs, c.observers)
		c.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, e := range batch {
			for _, o := range obs {
				o.fn(e)
			}
		}
	}
}
