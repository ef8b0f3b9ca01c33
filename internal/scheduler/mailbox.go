package scheduler

import (
	"fmt"
	"sync"

	"github.com/jpalmerr/routepulse/internal/route"
)

// MessageKind identifies a control message sent to an [IntervalScheduler].
type MessageKind int

const (
	// AddRoute inserts Message.Route into the scheduler's set, replacing any
	// route with the same id.
	AddRoute MessageKind = iota + 1

	// RemoveRoute deletes Message.RouteID from the scheduler's set. Removing
	// an unknown id is not an error.
	RemoveRoute

	// Shutdown terminates the scheduler.
	Shutdown
)

// String returns a readable name for the kind.
func (k MessageKind) String() string {
	switch k {
	case AddRoute:
		return "add_route"
	case RemoveRoute:
		return "remove_route"
	case Shutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("MessageKind(%d)", int(k))
	}
}

// Message is one control instruction for an interval's scheduler.
type Message struct {
	Kind    MessageKind
	Route   route.Route
	RouteID string
}

// Mailbox is the control queue of one interval: an ordered, point-to-point
// queue with a single receiving scheduler.
//
// Send never blocks, so a sender holding the registry lock cannot stall on
// a scheduler that is busy with a slow tick. Messages are delivered in send
// order when the receiver drains.
type Mailbox struct {
	interval int

	mu      sync.Mutex
	pending []Message
}

// NewMailbox creates an empty mailbox for the given interval.
func NewMailbox(interval int) *Mailbox {
	return &Mailbox{interval: interval}
}

// Interval returns the monitoring interval, in seconds, this mailbox serves.
func (m *Mailbox) Interval() int {
	return m.interval
}

// Send enqueues msg.
func (m *Mailbox) Send(msg Message) {
	m.mu.Lock()
	m.pending = append(m.pending, msg)
	m.mu.Unlock()
}

// Drain removes and returns every pending message, oldest first.
func (m *Mailbox) Drain() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.pending
	m.pending = nil
	return msgs
}

// Len returns the number of messages not yet drained.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
